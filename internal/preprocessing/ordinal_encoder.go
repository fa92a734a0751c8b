package preprocessing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFitted       = errors.New("must be fitted before transform")
	ErrUnknownCategory = errors.New("unknown category")
)

// OrdinalEncoder maps each categorical column to the index of its value in
// the sorted list of categories seen during fit. Unseen values are errors.
type OrdinalEncoder struct {
	Categories [][]string
	IsFitted   bool
}

func NewOrdinalEncoder() *OrdinalEncoder {
	return &OrdinalEncoder{}
}

func (oe *OrdinalEncoder) Fit(X [][]string) error {
	if len(X) == 0 {
		return fmt.Errorf("empty dataset")
	}

	nFeatures := len(X[0])
	oe.Categories = make([][]string, nFeatures)
	for j := 0; j < nFeatures; j++ {
		seen := make(map[string]bool)
		for i := range X {
			seen[X[i][j]] = true
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		oe.Categories[j] = cats
	}

	oe.IsFitted = true
	return nil
}

func (oe *OrdinalEncoder) Transform(X [][]string) ([][]decimal.Decimal, error) {
	if !oe.IsFitted {
		return nil, fmt.Errorf("OrdinalEncoder: %w", ErrNotFitted)
	}

	result := make([][]decimal.Decimal, len(X))
	for i := range X {
		if len(X[i]) != len(oe.Categories) {
			return nil, fmt.Errorf("sample %d: expected %d categorical features, got %d", i, len(oe.Categories), len(X[i]))
		}
		result[i] = make([]decimal.Decimal, len(X[i]))
		for j, value := range X[i] {
			code := sort.SearchStrings(oe.Categories[j], value)
			if code >= len(oe.Categories[j]) || oe.Categories[j][code] != value {
				return nil, fmt.Errorf("%w %q in feature %d (known: %v)", ErrUnknownCategory, value, j, oe.Categories[j])
			}
			result[i][j] = decimal.NewFromInt(int64(code))
		}
	}

	return result, nil
}
