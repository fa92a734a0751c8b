package pipeline

import (
	"context"
	"testing"

	"drugclassifier/internal/data"
	"drugclassifier/internal/models"
	"drugclassifier/internal/preprocessing"
	"drugclassifier/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func treeConfig() Config {
	cfg := DefaultConfig()
	cfg.Model = models.DefaultConfig("tree")
	return cfg
}

func fitted(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	rows, labels := testutil.DrugRows(200, 1)
	p, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Fit(rows, labels))
	return p
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []int{data.ColSex, data.ColBP, data.ColCholesterol}, cfg.Categorical)
	assert.Equal(t, []int{data.ColAge, data.ColNaToK}, cfg.Numeric)
	assert.Equal(t, preprocessing.ScaleStandard, cfg.ScaleType)
	assert.Equal(t, "forest", cfg.Model.Algorithm)
	assert.Equal(t, 100, cfg.Model.NTrees)
	assert.Equal(t, int64(125), cfg.Model.Seed)
}

func TestUnfittedPipeline(t *testing.T) {
	p, err := New(treeConfig())
	require.NoError(t, err)

	_, ok := p.Classes()
	assert.False(t, ok)

	_, err = p.Predict([][]string{data.Examples()[0].Row()})
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = p.PredictProba([][]string{data.Examples()[0].Row()})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestFitRecoversTrainingLabels(t *testing.T) {
	rows, labels := testutil.DrugRows(200, 1)
	p := fitted(t, treeConfig())

	classes, ok := p.Classes()
	require.True(t, ok)
	assert.Equal(t, []string{"DrugY", "drugA", "drugB", "drugC", "drugX"}, classes)

	predicted, err := p.Predict(rows)
	require.NoError(t, err)
	assert.Equal(t, labels, predicted)

	assert.Equal(t, []string{"encoder__Sex", "encoder__BP", "encoder__Cholesterol", "num__Age", "num__Na_to_K"}, p.Features)
}

func TestPredictProbaFollowsClassOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.NTrees = 10
	p := fitted(t, cfg)
	classes, _ := p.Classes()

	var rows [][]string
	for _, ex := range data.Examples() {
		rows = append(rows, ex.Row())
	}
	proba, err := p.PredictProba(rows)
	require.NoError(t, err)
	predicted, err := p.Predict(rows)
	require.NoError(t, err)

	for i, row := range proba {
		require.Len(t, row, len(classes))
		sum := 0.0
		best := row[0]
		for c, cp := range row {
			assert.Equal(t, classes[c], cp.Label)
			sum += cp.Probability
			if cp.Probability > best.Probability {
				best = cp
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.Equal(t, best.Label, predicted[i])
	}
}

func TestPredictRejectsUnknownCategory(t *testing.T) {
	p := fitted(t, treeConfig())

	_, err := p.Predict([][]string{{"30", "X", "HIGH", "NORMAL", "15.4"}})
	assert.ErrorIs(t, err, preprocessing.ErrUnknownCategory)
}

func TestTop(t *testing.T) {
	p := fitted(t, treeConfig())

	top, err := p.Top(data.NewPatient(50, "M", "HIGH", "HIGH", 34).Row(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "DrugY", top[0].Label)
	assert.Equal(t, 1.0, top[0].Probability)
	assert.Equal(t, 0.0, top[1].Probability)
}

func TestRank(t *testing.T) {
	probs := []ClassProbability{
		{Label: "a", Probability: 0.2},
		{Label: "b", Probability: 0.5},
		{Label: "c", Probability: 0.2},
		{Label: "d", Probability: 0.1},
	}

	got := Rank(probs, 3)
	assert.Equal(t, []ClassProbability{
		{Label: "b", Probability: 0.5},
		{Label: "a", Probability: 0.2},
		{Label: "c", Probability: 0.2},
	}, got)

	assert.Len(t, Rank(probs, 0), 4)
	assert.Len(t, Rank(probs, 10), 4)
}

func TestFitLengthMismatch(t *testing.T) {
	p, err := New(treeConfig())
	require.NoError(t, err)
	assert.Error(t, p.Fit([][]string{{"30", "M", "HIGH", "NORMAL", "15.4"}}, nil))
}

func TestFitContextCancelled(t *testing.T) {
	rows, labels := testutil.DrugRows(200, 1)
	for _, algorithm := range []string{"forest", "tree"} {
		t.Run(algorithm, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Model = models.DefaultConfig(algorithm)
			p, err := New(cfg)
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			assert.ErrorIs(t, p.FitContext(ctx, rows, labels), context.Canceled)

			_, err = p.Predict(rows[:1])
			assert.ErrorIs(t, err, ErrNotFitted)
		})
	}
}

func TestNewUnknownAlgorithm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Algorithm = "svm"
	_, err := New(cfg)
	assert.Error(t, err)
}
