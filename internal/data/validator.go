package data

import (
	"fmt"
	"sort"
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

func (dv *DataValidator) ValidateDataset(ds *Dataset) error {
	if ds == nil || len(ds.Rows) == 0 {
		return ErrEmptyDataset
	}

	if len(ds.Rows) != len(ds.Labels) {
		return fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(ds.Rows), len(ds.Labels))
	}

	nFeatures := len(ds.Rows[0])
	if nFeatures == 0 {
		return fmt.Errorf("features cannot be empty")
	}

	for i, sample := range ds.Rows {
		if len(sample) != nFeatures {
			return fmt.Errorf("inconsistent feature count at sample %d: expected %d, got %d", i, nFeatures, len(sample))
		}
	}

	for i, label := range ds.Labels {
		if label == "" {
			return fmt.Errorf("missing label at sample %d", i)
		}
	}

	return nil
}

func (dv *DataValidator) ValidateLabels(labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("labels are empty")
	}

	classCount := make(map[string]int)
	for _, label := range labels {
		classCount[label]++
	}

	if len(classCount) < 2 {
		return fmt.Errorf("dataset must have at least 2 classes, found %d", len(classCount))
	}

	return nil
}

// ClassDistribution returns label counts sorted by label.
func (dv *DataValidator) ClassDistribution(labels []string) []ClassCount {
	counts := make(map[string]int)
	for _, label := range labels {
		counts[label]++
	}

	dist := make([]ClassCount, 0, len(counts))
	for label, n := range counts {
		dist = append(dist, ClassCount{Label: label, Count: n})
	}
	sort.Slice(dist, func(i, j int) bool { return dist[i].Label < dist[j].Label })
	return dist
}

type ClassCount struct {
	Label string
	Count int
}
