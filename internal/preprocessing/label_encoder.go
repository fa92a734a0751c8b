package preprocessing

import (
	"fmt"
	"sort"
)

// LabelEncoder maps target labels to class indices. Classes are sorted so
// that the encoding does not depend on row order.
type LabelEncoder struct {
	ClassToInt map[string]int
	IntToClass []string
	IsFitted   bool
}

func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{
		ClassToInt: make(map[string]int),
		IsFitted:   false,
	}
}

func (le *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("cannot fit LabelEncoder on empty labels")
	}

	uniqueLabels := make(map[string]bool)
	for _, label := range labels {
		uniqueLabels[label] = true
	}

	le.IntToClass = make([]string, 0, len(uniqueLabels))
	for label := range uniqueLabels {
		le.IntToClass = append(le.IntToClass, label)
	}
	sort.Strings(le.IntToClass)

	le.ClassToInt = make(map[string]int, len(le.IntToClass))
	for idx, label := range le.IntToClass {
		le.ClassToInt[label] = idx
	}

	le.IsFitted = true
	return nil
}

func (le *LabelEncoder) Transform(labels []string) ([]int, error) {
	if !le.IsFitted {
		return nil, fmt.Errorf("LabelEncoder: %w", ErrNotFitted)
	}

	result := make([]int, len(labels))
	for i, label := range labels {
		if val, ok := le.ClassToInt[label]; ok {
			result[i] = val
		} else {
			return nil, fmt.Errorf("unknown label: %s", label)
		}
	}

	return result, nil
}

func (le *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	if err := le.Fit(labels); err != nil {
		return nil, err
	}
	return le.Transform(labels)
}

func (le *LabelEncoder) InverseTransform(encoded []int) ([]string, error) {
	if !le.IsFitted {
		return nil, fmt.Errorf("LabelEncoder: %w", ErrNotFitted)
	}

	result := make([]string, len(encoded))
	for i, val := range encoded {
		if val < 0 || val >= len(le.IntToClass) {
			return nil, fmt.Errorf("unknown encoding: %d", val)
		}
		result[i] = le.IntToClass[val]
	}

	return result, nil
}

// Classes returns a copy of the sorted class labels.
func (le *LabelEncoder) Classes() []string {
	out := make([]string, len(le.IntToClass))
	copy(out, le.IntToClass)
	return out
}
