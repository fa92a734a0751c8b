package preprocessing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ColumnTransformer turns raw rows of string cells into a numeric feature
// matrix. Categorical columns are ordinal encoded; numeric columns are median
// imputed and then scaled. Output order is encoded categoricals followed by
// scaled numerics.
type ColumnTransformer struct {
	Categorical []int
	Numeric     []int
	Encoder     *OrdinalEncoder
	Imputer     *MedianImputer
	Scaler      *Scaler
	Width       int
	IsFitted    bool
}

func NewColumnTransformer(categorical, numeric []int, scaleType string) *ColumnTransformer {
	return &ColumnTransformer{
		Categorical: categorical,
		Numeric:     numeric,
		Encoder:     NewOrdinalEncoder(),
		Imputer:     NewMedianImputer(),
		Scaler:      NewScaler(scaleType),
	}
}

func (ct *ColumnTransformer) Fit(rows [][]string) error {
	_, err := ct.FitTransform(rows)
	return err
}

func (ct *ColumnTransformer) FitTransform(rows [][]string) ([][]decimal.Decimal, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty dataset")
	}
	ct.Width = len(rows[0])

	cats, nums, err := ct.split(rows)
	if err != nil {
		return nil, err
	}

	if err := ct.Encoder.Fit(cats); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	if err := ct.Imputer.Fit(nums); err != nil {
		return nil, fmt.Errorf("imputer: %w", err)
	}
	imputed, err := ct.Imputer.Transform(nums)
	if err != nil {
		return nil, fmt.Errorf("imputer: %w", err)
	}
	if err := ct.Scaler.Fit(imputed); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}

	ct.IsFitted = true
	return ct.Transform(rows)
}

func (ct *ColumnTransformer) Transform(rows [][]string) ([][]decimal.Decimal, error) {
	if !ct.IsFitted {
		return nil, fmt.Errorf("ColumnTransformer: %w", ErrNotFitted)
	}

	cats, nums, err := ct.split(rows)
	if err != nil {
		return nil, err
	}

	encoded, err := ct.Encoder.Transform(cats)
	if err != nil {
		return nil, err
	}
	imputed, err := ct.Imputer.Transform(nums)
	if err != nil {
		return nil, err
	}
	scaled, err := ct.Scaler.Transform(imputed)
	if err != nil {
		return nil, err
	}

	out := make([][]decimal.Decimal, len(rows))
	for i := range rows {
		out[i] = make([]decimal.Decimal, 0, len(ct.Categorical)+len(ct.Numeric))
		out[i] = append(out[i], encoded[i]...)
		out[i] = append(out[i], scaled[i]...)
	}
	return out, nil
}

// FeatureNames names the output columns given the raw column names.
func (ct *ColumnTransformer) FeatureNames(raw []string) []string {
	names := make([]string, 0, len(ct.Categorical)+len(ct.Numeric))
	for _, j := range ct.Categorical {
		names = append(names, "encoder__"+raw[j])
	}
	for _, j := range ct.Numeric {
		names = append(names, "num__"+raw[j])
	}
	return names
}

func (ct *ColumnTransformer) split(rows [][]string) ([][]string, [][]decimal.NullDecimal, error) {
	cats := make([][]string, len(rows))
	nums := make([][]decimal.NullDecimal, len(rows))

	for i, row := range rows {
		if ct.Width > 0 && len(row) != ct.Width {
			return nil, nil, fmt.Errorf("sample %d: expected %d columns, got %d", i, ct.Width, len(row))
		}

		cats[i] = make([]string, len(ct.Categorical))
		for k, j := range ct.Categorical {
			cats[i][k] = strings.TrimSpace(row[j])
		}

		nums[i] = make([]decimal.NullDecimal, len(ct.Numeric))
		for k, j := range ct.Numeric {
			cell := strings.TrimSpace(row[j])
			if cell == "" {
				continue
			}
			d, err := decimal.NewFromString(cell)
			if err != nil {
				return nil, nil, fmt.Errorf("sample %d, column %d: not a number: %q", i, j, cell)
			}
			nums[i][k] = decimal.NewNullDecimal(d)
		}
	}
	return cats, nums, nil
}
