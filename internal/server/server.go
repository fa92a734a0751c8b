// Package server exposes the trained pipeline as a small web demo.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"drugclassifier/internal/data"
	"drugclassifier/internal/pipeline"
	"drugclassifier/internal/predictor"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	"go.uber.org/zap"
)

const (
	title       = "Drug Classification"
	description = "Enter the details to correctly identify Drug type?"
	article     = "This app is part of the CI/CD for ML tutorial."
)

//go:embed templates/*.html
var templateFS embed.FS

type templates struct {
	t *template.Template
}

func (t *templates) Render(w io.Writer, name string, data any, c echo.Context) error {
	return t.t.ExecuteTemplate(w, name, data)
}

type PredictRequest struct {
	Age           string `form:"age" query:"age"`
	Sex           string `form:"sex" query:"sex"`
	BloodPressure string `form:"blood_pressure" query:"blood_pressure"`
	Cholesterol   string `form:"cholesterol" query:"cholesterol"`
	NaToK         string `form:"na_to_k" query:"na_to_k"`
}

func (r PredictRequest) Patient() (data.Patient, error) {
	return data.ParsePatient([]string{r.Age, r.Sex, r.BloodPressure, r.Cholesterol, r.NaToK})
}

type PredictResponse struct {
	Label       string                      `json:"label"`
	Predicted   string                      `json:"predicted"`
	Confidences []pipeline.ClassProbability `json:"confidences"`
}

type Example struct {
	Age           string `json:"age"`
	Sex           string `json:"sex"`
	BloodPressure string `json:"blood_pressure"`
	Cholesterol   string `json:"cholesterol"`
	NaToK         string `json:"na_to_k"`
}

// formFields maps schema column positions to the form parameter names.
var formFields = []string{"age", "sex", "blood_pressure", "cholesterol", "na_to_k"}

type field struct {
	Name    string
	Label   string
	Numeric bool
	Min     string
	Max     string
	Step    string
	Default string
	Values  []string
}

type page struct {
	Title       string
	Description string
	Article     string
	Fields      []field
	Examples    []Example
	Classes     []string
}

// New builds the echo instance serving pred.
func New(pred *predictor.Predictor, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(gommonlog.WARN)
	e.Renderer = &templates{t: template.Must(template.ParseFS(templateFS, "templates/*.html"))}

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
			return
		}
		logger.Error("request failed", zap.Error(err))
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(logger))

	h := &handlers{predictor: pred}
	e.GET("/", h.index)
	e.POST("/predict", h.predict)
	e.GET("/examples", h.examples)
	e.GET("/healthz", h.health)

	return e
}

// requestLogger logs one line per request with latency and status.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			begin := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			logger.Info("request",
				zap.String("id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(begin)),
			)
			return err
		}
	}
}

type handlers struct {
	predictor *predictor.Predictor
}

func (h *handlers) index(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", page{
		Title:       title,
		Description: description,
		Article:     article,
		Fields:      fields(h.predictor.Schema(), data.Examples()[0]),
		Examples:    examples(),
		Classes:     h.predictor.Classes(),
	})
}

func (h *handlers) predict(c echo.Context) error {
	var req PredictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	patient, err := req.Patient()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	prediction, err := h.predictor.Predict(c.Request().Context(), patient)
	if errors.Is(err, data.ErrInvalidPatient) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, PredictResponse{
		Label:       prediction.Label(),
		Predicted:   prediction.Predicted,
		Confidences: prediction.Top,
	})
}

func (h *handlers) examples(c echo.Context) error {
	return c.JSON(http.StatusOK, examples())
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"model":   h.predictor.Metadata().ModelName,
		"classes": h.predictor.Classes(),
	})
}

func fields(schema data.Schema, initial data.Patient) []field {
	row := initial.Row()
	out := make([]field, len(schema.Features))
	for i, col := range schema.Features {
		f := field{
			Name:    formFields[i],
			Label:   col.Label,
			Numeric: col.Kind == data.Numeric,
			Default: row[i],
			Values:  col.Values,
		}
		if f.Numeric {
			f.Min = col.Min.String()
			f.Max = col.Max.String()
			f.Step = col.Step.String()
		}
		out[i] = f
	}
	return out
}

func examples() []Example {
	var out []Example
	for _, p := range data.Examples() {
		row := p.Row()
		out = append(out, Example{
			Age:           row[data.ColAge],
			Sex:           row[data.ColSex],
			BloodPressure: row[data.ColBP],
			Cholesterol:   row[data.ColCholesterol],
			NaToK:         row[data.ColNaToK],
		})
	}
	return out
}

// Run serves e on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
