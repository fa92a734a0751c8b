package models

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrEmptyTrainingSet = errors.New("empty training set")

// Model is a classifier over encoded feature matrices. Class labels are the
// integer indices produced by a label encoder.
type Model interface {
	Fit(X [][]decimal.Decimal, y []int) error
	Predict(X [][]decimal.Decimal) []int
	PredictProba(X [][]decimal.Decimal) [][]float64
	GetName() string
	GetParams() map[string]any
	GetClasses() []int
	Reset()
}

// ContextFitter is implemented by models whose fitting can be cancelled.
type ContextFitter interface {
	FitContext(ctx context.Context, X [][]decimal.Decimal, y []int) error
}

type BaseModel struct {
	Name    string
	Params  map[string]any
	Classes []int
}

func (bm *BaseModel) GetName() string {
	return bm.Name
}

func (bm *BaseModel) GetParams() map[string]any {
	return bm.Params
}

// ExtractClasses returns the distinct labels of y in ascending order.
func ExtractClasses(y []int) []int {
	classMap := make(map[int]bool)
	for _, label := range y {
		classMap[label] = true
	}

	classes := make([]int, 0, len(classMap))
	for class := range classMap {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	return classes
}

func checkTrainingSet(X [][]decimal.Decimal, y []int) error {
	if len(X) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return fmt.Errorf("x and y must have the same length: %d vs %d", len(X), len(y))
	}
	for _, label := range y {
		if label < 0 {
			return fmt.Errorf("negative class index %d", label)
		}
	}
	return nil
}

// argmax returns the index of the largest value, the lowest index on ties.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
