package data

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

type ColumnKind int

const (
	Numeric ColumnKind = iota
	Categorical
)

// Column describes one feature column. Min/Max bound numeric columns,
// Values enumerates the accepted categorical values.
type Column struct {
	Name    string
	Label   string
	Kind    ColumnKind
	Integer bool
	Min     decimal.Decimal
	Max     decimal.Decimal
	Step    decimal.Decimal
	Values  []string
}

type Schema struct {
	Features []Column
	Target   string
}

const (
	ColAge         = 0
	ColSex         = 1
	ColBP          = 2
	ColCholesterol = 3
	ColNaToK       = 4
)

// DrugSchema is the patient record layout. Column order is significant:
// fitted pipelines index raw rows by position.
func DrugSchema() Schema {
	return Schema{
		Features: []Column{
			{Name: "Age", Label: "Age", Kind: Numeric, Integer: true,
				Min: decimal.NewFromInt(15), Max: decimal.NewFromInt(74), Step: decimal.NewFromInt(1)},
			{Name: "Sex", Label: "Sex", Kind: Categorical, Values: []string{"M", "F"}},
			{Name: "BP", Label: "Blood Pressure", Kind: Categorical, Values: []string{"HIGH", "LOW", "NORMAL"}},
			{Name: "Cholesterol", Label: "Cholesterol", Kind: Categorical, Values: []string{"HIGH", "NORMAL"}},
			{Name: "Na_to_K", Label: "Na_to_K", Kind: Numeric,
				Min: decimal.RequireFromString("6.2"), Max: decimal.RequireFromString("38.2"), Step: decimal.RequireFromString("0.1")},
		},
		Target: "Drug",
	}
}

func (s Schema) FeatureNames() []string {
	names := make([]string, len(s.Features))
	for i, col := range s.Features {
		names[i] = col.Name
	}
	return names
}

func (s Schema) Header() []string {
	return append(s.FeatureNames(), s.Target)
}

func (s Schema) Indices(kind ColumnKind) []int {
	var idx []int
	for i, col := range s.Features {
		if col.Kind == kind {
			idx = append(idx, i)
		}
	}
	return idx
}

// CheckHeader verifies that header lists the feature columns in schema order,
// optionally followed by the target column.
func (s Schema) CheckHeader(header []string, requireTarget bool) (hasTarget bool, err error) {
	want := s.Header()
	got := make([]string, len(header))
	for i, h := range header {
		got[i] = strings.TrimSpace(h)
	}

	switch {
	case len(got) == len(want):
		hasTarget = true
	case len(got) == len(want)-1 && !requireTarget:
		hasTarget = false
	default:
		return false, fmt.Errorf("%w: expected columns %v, got %v", ErrMalformedHeader, want, got)
	}

	for i, name := range got {
		if name != want[i] {
			if slices.Contains(want, name) {
				return false, fmt.Errorf("%w: column %q at position %d, expected %q", ErrMalformedHeader, name, i, want[i])
			}
			return false, fmt.Errorf("%w: unexpected column %q, expected %q", ErrMalformedHeader, name, want[i])
		}
	}
	return hasTarget, nil
}
