package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"drugclassifier/internal/models"
	"drugclassifier/internal/persistence"
	"drugclassifier/internal/pipeline"
	"drugclassifier/internal/predictor"
	"drugclassifier/internal/testutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Model = models.DefaultConfig("tree")

	rows, labels := testutil.DrugRows(200, 1)
	p, err := pipeline.New(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Fit(rows, labels))

	pred, err := predictor.New(persistence.NewBundle(p), 5)
	require.NoError(t, err)
	return New(pred, zap.NewNop())
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func patientForm(age, sex, bp, chol, ratio string) url.Values {
	return url.Values{
		"age":            {age},
		"sex":            {sex},
		"blood_pressure": {bp},
		"cholesterol":    {chol},
		"na_to_k":        {ratio},
	}
}

func TestIndex(t *testing.T) {
	e := newServer(t)
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Drug Classification")
	assert.Contains(t, body, "Enter the details to correctly identify Drug type?")
	assert.Contains(t, body, "This app is part of the CI/CD for ML tutorial.")
	assert.Contains(t, body, `name="blood_pressure"`)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestPredict(t *testing.T) {
	e := newServer(t)
	rec := serve(e, postForm(patientForm("50", "M", "HIGH", "HIGH", "34")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "DrugY", resp.Predicted)
	assert.Equal(t, "Predicted Drug: DrugY", resp.Label)
	require.Len(t, resp.Confidences, 5)
	assert.Equal(t, "DrugY", resp.Confidences[0].Label)

	sum := 0.0
	for i, c := range resp.Confidences {
		sum += c.Probability
		if i > 0 {
			assert.LessOrEqual(t, c.Probability, resp.Confidences[i-1].Probability)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPredictJSONKeys(t *testing.T) {
	e := newServer(t)
	rec := serve(e, postForm(patientForm("35", "F", "LOW", "NORMAL", "8")))
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "label")
	assert.Contains(t, raw, "predicted")
	confidences := raw["confidences"].([]any)
	first := confidences[0].(map[string]any)
	assert.Contains(t, first, "label")
	assert.Contains(t, first, "confidence")
}

func TestPredictRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"age not a number", patientForm("abc", "M", "HIGH", "HIGH", "20")},
		{"age out of range", patientForm("90", "M", "HIGH", "HIGH", "20")},
		{"unknown blood pressure", patientForm("30", "M", "EXTREME", "HIGH", "20")},
		{"missing ratio", patientForm("30", "M", "HIGH", "HIGH", "")},
	}
	e := newServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, postForm(tt.form))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "message")
		})
	}
}

func TestExamples(t *testing.T) {
	e := newServer(t)
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/examples", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []Example
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []Example{
		{Age: "30", Sex: "M", BloodPressure: "HIGH", Cholesterol: "NORMAL", NaToK: "15.4"},
		{Age: "35", Sex: "F", BloodPressure: "LOW", Cholesterol: "NORMAL", NaToK: "8"},
		{Age: "50", Sex: "M", BloodPressure: "HIGH", Cholesterol: "HIGH", NaToK: "34"},
	}, got)

	for _, ex := range got {
		rec := serve(e, postForm(patientForm(ex.Age, ex.Sex, ex.BloodPressure, ex.Cholesterol, ex.NaToK)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newServer(t)
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Status  string   `json:"status"`
		Model   string   `json:"model"`
		Classes []string `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "DecisionTree", got.Model)
	assert.Len(t, got.Classes, 5)
}

func TestRunStopsOnCancel(t *testing.T) {
	e := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, e, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}
