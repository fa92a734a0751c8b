package data

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyDataset    = errors.New("dataset is empty")
	ErrMalformedHeader = errors.New("malformed header")
	ErrInvalidPatient  = errors.New("invalid patient record")
)

// Patient is one feature vector. Numeric fields may be missing when read
// from a CSV with empty cells; the pipeline imputes them.
type Patient struct {
	Age         decimal.NullDecimal
	Sex         string
	BP          string
	Cholesterol string
	NaToK       decimal.NullDecimal
}

func NewPatient(age int, sex, bp, cholesterol string, naToK float64) Patient {
	return Patient{
		Age:         decimal.NewNullDecimal(decimal.NewFromInt(int64(age))),
		Sex:         sex,
		BP:          bp,
		Cholesterol: cholesterol,
		NaToK:       decimal.NewNullDecimal(decimal.NewFromFloat(naToK)),
	}
}

// ParsePatient builds a patient from raw cells in schema order. Empty
// numeric cells become missing values; anything else must parse.
func ParsePatient(cells []string) (Patient, error) {
	if len(cells) != 5 {
		return Patient{}, fmt.Errorf("%w: expected 5 values, got %d", ErrInvalidPatient, len(cells))
	}

	age, err := parseNullDecimal(cells[ColAge])
	if err != nil {
		return Patient{}, fmt.Errorf("%w: Age: %v", ErrInvalidPatient, err)
	}
	ratio, err := parseNullDecimal(cells[ColNaToK])
	if err != nil {
		return Patient{}, fmt.Errorf("%w: Na_to_K: %v", ErrInvalidPatient, err)
	}

	return Patient{
		Age:         age,
		Sex:         strings.TrimSpace(cells[ColSex]),
		BP:          strings.TrimSpace(cells[ColBP]),
		Cholesterol: strings.TrimSpace(cells[ColCholesterol]),
		NaToK:       ratio,
	}, nil
}

func parseNullDecimal(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("not a number: %q", s)
	}
	return decimal.NewNullDecimal(d), nil
}

// Row returns the raw cells in schema order. Missing numerics are empty.
func (p Patient) Row() []string {
	return []string{
		nullString(p.Age),
		p.Sex,
		p.BP,
		p.Cholesterol,
		nullString(p.NaToK),
	}
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// Validate checks every field against the schema domains. Missing values
// are rejected: only training data may carry gaps.
func (p Patient) Validate(schema Schema) error {
	row := p.Row()
	for i, col := range schema.Features {
		value := row[i]
		switch col.Kind {
		case Numeric:
			if value == "" {
				return fmt.Errorf("%w: %s is missing", ErrInvalidPatient, col.Name)
			}
			d := decimal.RequireFromString(value)
			if col.Integer && !d.IsInteger() {
				return fmt.Errorf("%w: %s must be an integer, got %s", ErrInvalidPatient, col.Name, value)
			}
			if d.LessThan(col.Min) || d.GreaterThan(col.Max) {
				return fmt.Errorf("%w: %s=%s outside [%s, %s]", ErrInvalidPatient, col.Name, value, col.Min, col.Max)
			}
		case Categorical:
			if !slices.Contains(col.Values, value) {
				return fmt.Errorf("%w: %s=%q not one of %v", ErrInvalidPatient, col.Name, value, col.Values)
			}
		}
	}
	return nil
}

func (p Patient) String() string {
	return fmt.Sprintf("[%s, %s, %s, %s, %s]", nullString(p.Age), p.Sex, p.BP, p.Cholesterol, nullString(p.NaToK))
}

// Examples are the canned rows offered by the demo surfaces.
func Examples() []Patient {
	return []Patient{
		NewPatient(30, "M", "HIGH", "NORMAL", 15.4),
		NewPatient(35, "F", "LOW", "NORMAL", 8),
		NewPatient(50, "M", "HIGH", "HIGH", 34),
	}
}
