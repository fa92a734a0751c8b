package models

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// threeBands returns one feature split into three classes plus a noise
// feature.
func threeBands() ([][]decimal.Decimal, []int) {
	var X [][]decimal.Decimal
	var y []int
	for i := 0; i < 30; i++ {
		X = append(X, []decimal.Decimal{decimal.NewFromInt(int64(i)), decimal.NewFromInt(int64(i % 2))})
		y = append(y, i/10)
	}
	return X, y
}

func row(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func assertDistributions(t *testing.T, proba [][]float64, nClasses int) {
	t.Helper()
	for i, p := range proba {
		require.Len(t, p, nClasses)
		sum := 0.0
		for _, v := range p {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "row %d", i)
	}
}

func TestDecisionTree_FitsSeparableData(t *testing.T) {
	X, y := threeBands()
	tree := NewDecisionTree(0, 2)
	require.NoError(t, tree.Fit(X, y))

	assert.Equal(t, y, tree.Predict(X))
	assert.Equal(t, []int{0, 1, 2}, tree.GetClasses())
	assert.LessOrEqual(t, tree.Depth(), 3)

	proba := tree.PredictProba([][]decimal.Decimal{row(4, 0), row(25, 1)})
	assertDistributions(t, proba, 3)
	assert.Equal(t, []float64{1, 0, 0}, proba[0])
	assert.Equal(t, []float64{0, 0, 1}, proba[1])
}

func TestDecisionTree_MaxDepth(t *testing.T) {
	X, y := threeBands()
	tree := NewDecisionTree(1, 2)
	require.NoError(t, tree.Fit(X, y))
	assert.Equal(t, 1, tree.Depth())
}

func TestDecisionTree_EmptyTrainingSet(t *testing.T) {
	err := NewDecisionTree(0, 2).Fit(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)
}

func TestRandomForest_Deterministic(t *testing.T) {
	X, y := threeBands()

	fit := func(workers int) *RandomForest {
		rf := NewRandomForest(25, 0, 2, 125)
		rf.MaxWorkers = workers
		require.NoError(t, rf.Fit(X, y))
		return rf
	}

	serial := fit(1)
	parallel := fit(8)

	test := [][]decimal.Decimal{row(3, 1), row(14, 0), row(29, 1), row(9, 0), row(10, 0)}
	if diff := cmp.Diff(serial.PredictProba(test), parallel.PredictProba(test)); diff != "" {
		t.Errorf("probabilities depend on scheduling (-serial +parallel):\n%s", diff)
	}
	assert.Equal(t, serial.Predict(test), parallel.Predict(test))
	assert.Len(t, serial.Trees, 25)
}

func TestRandomForest_ProbabilitiesAreMeanOfTrees(t *testing.T) {
	X, y := threeBands()
	rf := NewRandomForest(10, 0, 2, 7)
	require.NoError(t, rf.Fit(X, y))

	sample := row(12, 1)
	proba := rf.PredictProba([][]decimal.Decimal{sample})
	assertDistributions(t, proba, 3)

	want := make([]float64, 3)
	for _, tree := range rf.Trees {
		for c, p := range tree.PredictProba([][]decimal.Decimal{sample})[0] {
			want[c] += p / float64(len(rf.Trees))
		}
	}
	for c := range want {
		assert.InDelta(t, want[c], proba[0][c], 1e-12)
	}
	assert.Equal(t, argmax(proba[0]), rf.Predict([][]decimal.Decimal{sample})[0])
}

func TestRandomForest_Errors(t *testing.T) {
	X, y := threeBands()
	assert.Error(t, NewRandomForest(0, 0, 2, 1).Fit(X, y))
	assert.Error(t, NewRandomForest(5, 0, 2, 1).Fit(X, y[:10]))
}

func TestRandomForest_FitContextCancelled(t *testing.T) {
	X, y := threeBands()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rf := NewRandomForest(50, 0, 2, 1)
	err := rf.FitContext(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rf.Trees)

	var _ ContextFitter = rf
	require.NoError(t, rf.FitContext(context.Background(), X, y))
	assert.Len(t, rf.Trees, 50)
}

func TestArgmaxTiesPickLowestIndex(t *testing.T) {
	assert.Equal(t, 1, argmax([]float64{0.2, 0.4, 0.4}))
	assert.Equal(t, 0, argmax([]float64{0.5, 0.5}))
}

func TestKNN(t *testing.T) {
	X, y := threeBands()
	knn := NewKNN(3, "manhattan")
	require.NoError(t, knn.Fit(X, y))

	proba := knn.PredictProba([][]decimal.Decimal{row(1, 1), row(27, 0)})
	assertDistributions(t, proba, 3)
	assert.Equal(t, []int{0, 2}, knn.Predict([][]decimal.Decimal{row(1, 1), row(27, 0)}))
}

func TestNaiveBayes(t *testing.T) {
	X, y := threeBands()
	nb := NewNaiveBayes(1e-9)
	require.NoError(t, nb.Fit(X, y))

	proba := nb.PredictProba([][]decimal.Decimal{row(2, 0), row(15, 1), row(28, 0)})
	assertDistributions(t, proba, 3)
	assert.Equal(t, []int{0, 1, 2}, nb.Predict([][]decimal.Decimal{row(2, 0), row(15, 1), row(28, 0)}))
	assert.False(t, math.IsNaN(proba[0][0]))
}

func TestCreateModel(t *testing.T) {
	for _, algo := range []string{"tree", "forest", "knn", "bayes"} {
		m, err := CreateModel(DefaultConfig(algo))
		require.NoError(t, err, algo)
		assert.NotEmpty(t, m.GetName())
	}

	_, err := CreateModel(ModelConfig{Algorithm: "svm"})
	assert.Error(t, err)

	forest, err := CreateModel(ModelConfig{Algorithm: "forest"})
	require.NoError(t, err)
	assert.Equal(t, 100, forest.(*RandomForest).NTrees)
}
