package preprocessing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// MedianImputer fills missing numeric values with the per-column median of
// the training data.
type MedianImputer struct {
	Medians  []decimal.Decimal
	IsFitted bool
}

func NewMedianImputer() *MedianImputer {
	return &MedianImputer{}
}

func (mi *MedianImputer) Fit(X [][]decimal.NullDecimal) error {
	if len(X) == 0 {
		return fmt.Errorf("empty dataset")
	}

	nFeatures := len(X[0])
	mi.Medians = make([]decimal.Decimal, nFeatures)
	for j := 0; j < nFeatures; j++ {
		observed := make([]decimal.Decimal, 0, len(X))
		for i := range X {
			if X[i][j].Valid {
				observed = append(observed, X[i][j].Decimal)
			}
		}
		if len(observed) == 0 {
			return fmt.Errorf("feature %d has no observed values", j)
		}
		mi.Medians[j] = median(observed)
	}

	mi.IsFitted = true
	return nil
}

func (mi *MedianImputer) Transform(X [][]decimal.NullDecimal) ([][]decimal.Decimal, error) {
	if !mi.IsFitted {
		return nil, fmt.Errorf("MedianImputer: %w", ErrNotFitted)
	}

	result := make([][]decimal.Decimal, len(X))
	for i := range X {
		if len(X[i]) != len(mi.Medians) {
			return nil, fmt.Errorf("sample %d: expected %d numeric features, got %d", i, len(mi.Medians), len(X[i]))
		}
		result[i] = make([]decimal.Decimal, len(X[i]))
		for j, v := range X[i] {
			if v.Valid {
				result[i][j] = v.Decimal
			} else {
				result[i][j] = mi.Medians[j]
			}
		}
	}
	return result, nil
}

func median(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].LessThan(sorted[b]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}
