package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Dataset holds raw feature cells in schema order and the target labels.
type Dataset struct {
	Header []string
	Rows   [][]string
	Labels []string
}

func (d *Dataset) Len() int {
	return len(d.Rows)
}

type CSVReader struct {
	filename string
	schema   Schema
}

func NewCSVReader(filename string, schema Schema) *CSVReader {
	return &CSVReader{filename: filename, schema: schema}
}

// LoadDataset reads a labelled dataset. The header must match the schema
// exactly, target column last.
func (cr *CSVReader) LoadDataset() (*Dataset, error) {
	file, err := os.Open(cr.filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadDataset(file, cr.schema)
}

// EachPatientBatch streams the file through fn, at most size patients at a
// time. The target column is optional; labels is nil when it is absent. A
// file without rows yields ErrEmptyDataset and fn is never called.
func (cr *CSVReader) EachPatientBatch(size int, fn func(patients []Patient, labels []string) error) error {
	stream, err := NewStreamingCSVReader(cr.filename, cr.schema)
	if err != nil {
		return err
	}
	defer stream.Close()

	seen := 0
	for {
		batch, labels, err := stream.ReadBatch(size)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		seen += len(batch)
		if err := fn(batch, labels); err != nil {
			return err
		}
	}

	if seen == 0 {
		return ErrEmptyDataset
	}
	return nil
}

func ReadDataset(r io.Reader, schema Schema) (*Dataset, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrEmptyDataset)
	}

	if _, err := schema.CheckHeader(records[0], true); err != nil {
		return nil, err
	}

	data := records[1:]
	if len(data) == 0 {
		return nil, ErrEmptyDataset
	}

	nFeatures := len(schema.Features)
	ds := &Dataset{
		Header: schema.FeatureNames(),
		Rows:   make([][]string, len(data)),
		Labels: make([]string, len(data)),
	}

	for i, record := range data {
		row := make([]string, nFeatures)
		for j := 0; j < nFeatures; j++ {
			cell := strings.TrimSpace(record[j])
			if schema.Features[j].Kind == Numeric {
				if _, err := parseNullDecimal(cell); err != nil {
					return nil, fmt.Errorf("row %d, column %s: %w", i+1, schema.Features[j].Name, err)
				}
			}
			row[j] = cell
		}
		ds.Rows[i] = row
		ds.Labels[i] = strings.TrimSpace(record[nFeatures])
	}

	return ds, nil
}
