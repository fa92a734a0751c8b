package evaluation

import (
	"fmt"
	"math"
	"math/rand"
)

// Shuffle permutes rows and labels together with a fixed seed. The inputs
// are left untouched.
func Shuffle(rows [][]string, labels []string, seed int64) ([][]string, []string) {
	indices := make([]int, len(rows))
	for i := range indices {
		indices[i] = i
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	return take(rows, labels, indices)
}

type TrainTestSplitter struct {
	testSize   float64
	randomSeed int64
	shuffle    bool
}

func NewTrainTestSplitter(testSize float64, randomSeed int64, shuffle bool) *TrainTestSplitter {
	return &TrainTestSplitter{
		testSize:   testSize,
		randomSeed: randomSeed,
		shuffle:    shuffle,
	}
}

type Split struct {
	TrainRows   [][]string
	TrainLabels []string
	TestRows    [][]string
	TestLabels  []string
}

// Split holds out ceil(n * testSize) samples for testing.
func (tts *TrainTestSplitter) Split(rows [][]string, labels []string) (*Split, error) {
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("x and y must have the same length")
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot split empty dataset")
	}

	if tts.testSize <= 0 || tts.testSize >= 1 {
		return nil, fmt.Errorf("test size must be between 0 and 1")
	}

	n := len(rows)
	testCount := int(math.Ceil(float64(n) * tts.testSize))
	trainCount := n - testCount
	if trainCount <= 0 {
		return nil, fmt.Errorf("test size %.2f leaves no training samples out of %d", tts.testSize, n)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if tts.shuffle {
		rng := rand.New(rand.NewSource(tts.randomSeed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	s := &Split{}
	s.TestRows, s.TestLabels = take(rows, labels, indices[:testCount])
	s.TrainRows, s.TrainLabels = take(rows, labels, indices[testCount:])
	return s, nil
}

type KFoldSplitter struct {
	nFolds     int
	shuffle    bool
	randomSeed int64
}

func NewKFoldSplitter(nFolds int, shuffle bool, randomSeed int64) *KFoldSplitter {
	return &KFoldSplitter{
		nFolds:     nFolds,
		shuffle:    shuffle,
		randomSeed: randomSeed,
	}
}

// Folds returns the test indices of each fold. The last fold absorbs the
// remainder.
func (kfs *KFoldSplitter) Folds(n int) ([][]int, error) {
	if n == 0 {
		return nil, fmt.Errorf("cannot split empty dataset")
	}

	if kfs.nFolds <= 1 || kfs.nFolds > n {
		return nil, fmt.Errorf("number of folds must be between 2 and %d", n)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if kfs.shuffle {
		rng := rand.New(rand.NewSource(kfs.randomSeed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	foldSize := n / kfs.nFolds
	folds := make([][]int, kfs.nFolds)
	for fold := 0; fold < kfs.nFolds; fold++ {
		testStart := fold * foldSize
		testEnd := testStart + foldSize
		if fold == kfs.nFolds-1 {
			testEnd = n
		}
		folds[fold] = indices[testStart:testEnd]
	}

	return folds, nil
}

func take(rows [][]string, labels []string, indices []int) ([][]string, []string) {
	outRows := make([][]string, len(indices))
	outLabels := make([]string, len(indices))
	for i, idx := range indices {
		outRows[i] = make([]string, len(rows[idx]))
		copy(outRows[i], rows[idx])
		outLabels[i] = labels[idx]
	}
	return outRows, outLabels
}
