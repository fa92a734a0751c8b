package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// StreamingCSVReader reads patient rows in fixed-size batches so large
// prediction files never sit in memory at once.
type StreamingCSVReader struct {
	file      *os.File
	reader    *csv.Reader
	schema    Schema
	header    []string
	hasTarget bool
	line      int
}

func NewStreamingCSVReader(filename string, schema Schema) (*StreamingCSVReader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		file.Close()
		return nil, ErrEmptyDataset
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	hasTarget, err := schema.CheckHeader(header, false)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &StreamingCSVReader{
		file:      file,
		reader:    reader,
		schema:    schema,
		header:    header,
		hasTarget: hasTarget,
		line:      1,
	}, nil
}

func (r *StreamingCSVReader) Header() []string {
	return r.header
}

// HasTarget reports whether the file carries the label column.
func (r *StreamingCSVReader) HasTarget() bool {
	return r.hasTarget
}

// ReadBatch returns up to batchSize patients. labels is nil when the file has
// no target column. io.EOF is returned once no rows remain.
func (r *StreamingCSVReader) ReadBatch(batchSize int) ([]Patient, []string, error) {
	var patients []Patient
	var labels []string
	nFeatures := len(r.schema.Features)

	for len(patients) < batchSize {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		r.line++
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", r.line, err)
		}

		p, err := ParsePatient(record[:nFeatures])
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		patients = append(patients, p)
		if r.hasTarget {
			labels = append(labels, strings.TrimSpace(record[nFeatures]))
		}
	}

	if len(patients) == 0 {
		return nil, nil, io.EOF
	}
	return patients, labels, nil
}

func (r *StreamingCSVReader) Close() error {
	return r.file.Close()
}
