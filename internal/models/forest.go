package models

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RandomForest averages the class distributions of bootstrap-trained trees.
// Per-tree seeds are drawn up front from Seed, so the fitted forest does not
// depend on how tree fitting is scheduled across workers.
type RandomForest struct {
	BaseModel
	NTrees          int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64
	NClasses        int
	Trees           []*DecisionTree
	MaxWorkers      int
}

func NewRandomForest(nTrees, maxDepth, minSamplesSplit int, seed int64) *RandomForest {
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}

	return &RandomForest{
		NTrees:          nTrees,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		Seed:            seed,
		MaxWorkers:      runtime.GOMAXPROCS(0),
		BaseModel: BaseModel{
			Name: "RandomForest",
			Params: map[string]any{
				"n_trees":           nTrees,
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
				"random_state":      seed,
			},
		},
	}
}

func (rf *RandomForest) Fit(X [][]decimal.Decimal, y []int) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext fits the forest, abandoning trees not yet started once ctx is
// done. A cancelled fit leaves the forest unfitted.
func (rf *RandomForest) FitContext(ctx context.Context, X [][]decimal.Decimal, y []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	if rf.NTrees <= 0 {
		return fmt.Errorf("n_trees must be positive, got %d", rf.NTrees)
	}

	rf.Classes = ExtractClasses(y)
	rf.NClasses = rf.Classes[len(rf.Classes)-1] + 1

	nFeatures := len(X[0])
	rf.MaxFeatures = int(math.Sqrt(float64(nFeatures)))
	if rf.MaxFeatures < 1 {
		rf.MaxFeatures = 1
	}

	seeds := make([]int64, rf.NTrees)
	r := rand.New(rand.NewSource(rf.Seed))
	for i := range seeds {
		seeds[i] = r.Int63()
	}

	rf.Trees = make([]*DecisionTree, rf.NTrees)

	g, gctx := errgroup.WithContext(ctx)
	workers := rf.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := 0; i < rf.NTrees; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tree, err := rf.trainSingleTree(X, y, seeds[i])
			if err != nil {
				return fmt.Errorf("tree %d training failed: %w", i, err)
			}
			rf.Trees[i] = tree
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		rf.Reset()
		return err
	}
	return nil
}

func (rf *RandomForest) trainSingleTree(X [][]decimal.Decimal, y []int, seed int64) (*DecisionTree, error) {
	r := rand.New(rand.NewSource(seed))

	n := len(X)
	XBoot := make([][]decimal.Decimal, n)
	yBoot := make([]int, n)
	for i := 0; i < n; i++ {
		idx := r.Intn(n)
		XBoot[i] = X[idx]
		yBoot[i] = y[idx]
	}

	tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit)
	tree.MaxFeatures = rf.MaxFeatures
	tree.NClasses = rf.NClasses
	tree.Seed = r.Int63()

	err := tree.Fit(XBoot, yBoot)
	return tree, err
}

func (rf *RandomForest) Predict(X [][]decimal.Decimal) []int {
	proba := rf.PredictProba(X)
	predictions := make([]int, len(X))
	for i := range proba {
		predictions[i] = argmax(proba[i])
	}
	return predictions
}

// PredictProba returns the mean tree distribution for each sample, indexed
// by class.
func (rf *RandomForest) PredictProba(X [][]decimal.Decimal) [][]float64 {
	proba := make([][]float64, len(X))
	nTrees := float64(len(rf.Trees))

	for i, sample := range X {
		sum := make([]float64, rf.NClasses)
		for _, tree := range rf.Trees {
			for c, p := range tree.classProba(sample) {
				sum[c] += p
			}
		}
		for c := range sum {
			sum[c] /= nTrees
		}
		proba[i] = sum
	}

	return proba
}

func (rf *RandomForest) GetClasses() []int {
	return rf.Classes
}

func (rf *RandomForest) Reset() {
	rf.Trees = nil
	rf.Classes = nil
	rf.NClasses = 0
}
