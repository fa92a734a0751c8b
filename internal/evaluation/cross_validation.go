package evaluation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Estimator is anything that can be fitted on raw rows and predict labels.
type Estimator interface {
	Fit(rows [][]string, labels []string) error
	Predict(rows [][]string) ([]string, error)
}

type CrossValidator struct {
	NFolds     int
	Shuffle    bool
	RandomSeed int64
	MaxWorkers int
}

type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64
}

func NewCrossValidator(nFolds int, seed int64) *CrossValidator {
	return &CrossValidator{
		NFolds:     nFolds,
		Shuffle:    true,
		RandomSeed: seed,
		MaxWorkers: 4,
	}
}

// CrossValidate fits a fresh estimator per fold and scores its accuracy on
// the held-out fold. Folds run concurrently; scores keep fold order.
func (cv *CrossValidator) CrossValidate(ctx context.Context, rows [][]string, labels []string, newEstimator func() (Estimator, error)) (*CVResult, error) {
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("x and y must have the same length")
	}

	folds, err := NewKFoldSplitter(cv.NFolds, cv.Shuffle, cv.RandomSeed).Folds(len(rows))
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	g, ctx := errgroup.WithContext(ctx)
	if cv.MaxWorkers > 0 {
		g.SetLimit(cv.MaxWorkers)
	}

	for i, testIndices := range folds {
		i, testIndices := i, testIndices
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			score, err := cv.evaluateFold(rows, labels, testIndices, newEstimator)
			if err != nil {
				return fmt.Errorf("fold %d failed: %w", i, err)
			}
			scores[i] = score
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	mean, std := calculateStats(scores)
	return &CVResult{Scores: scores, Mean: mean, Std: std}, nil
}

func (cv *CrossValidator) evaluateFold(rows [][]string, labels []string, testIndices []int, newEstimator func() (Estimator, error)) (float64, error) {
	testSet := make(map[int]bool, len(testIndices))
	for _, idx := range testIndices {
		testSet[idx] = true
	}

	trainIndices := make([]int, 0, len(rows)-len(testIndices))
	for i := range rows {
		if !testSet[i] {
			trainIndices = append(trainIndices, i)
		}
	}

	trainRows, trainLabels := take(rows, labels, trainIndices)
	testRows, testLabels := take(rows, labels, testIndices)

	est, err := newEstimator()
	if err != nil {
		return 0, err
	}
	if err := est.Fit(trainRows, trainLabels); err != nil {
		return 0, err
	}
	predictions, err := est.Predict(testRows)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i, p := range predictions {
		if p == testLabels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(testLabels)), nil
}

func calculateStats(scores []float64) (float64, float64) {
	if len(scores) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	return mean, math.Sqrt(variance)
}
