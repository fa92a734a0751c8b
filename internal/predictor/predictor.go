// Package predictor wraps a loaded pipeline artifact as a reusable prediction
// service.
package predictor

import (
	"context"
	"fmt"

	"drugclassifier/internal/data"
	"drugclassifier/internal/persistence"
	"drugclassifier/internal/pipeline"
)

const labelPrefix = "Predicted Drug: "

// Predictor owns the loaded pipeline for the lifetime of the process. It
// holds no per-request state.
type Predictor struct {
	pipe     *pipeline.Pipeline
	schema   data.Schema
	topK     int
	metadata persistence.BundleMetadata
}

type Prediction struct {
	Predicted string
	Top       []pipeline.ClassProbability
}

// Label formats the prediction the way the demo displays it.
func (p Prediction) Label() string {
	return labelPrefix + p.Predicted
}

// Load reads a trusted artifact from disk.
func Load(path string, topK int) (*Predictor, error) {
	bundle, err := persistence.Load(path, persistence.LoadOptions{Trusted: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return New(bundle, topK)
}

func New(bundle *persistence.Bundle, topK int) (*Predictor, error) {
	if _, ok := bundle.Pipeline.Classes(); !ok {
		return nil, fmt.Errorf("artifact holds an unfitted pipeline")
	}
	if topK <= 0 {
		topK = 5
	}
	return &Predictor{
		pipe:     bundle.Pipeline,
		schema:   data.DrugSchema(),
		topK:     topK,
		metadata: bundle.Metadata,
	}, nil
}

func (p *Predictor) Predict(ctx context.Context, patient data.Patient) (Prediction, error) {
	out, err := p.PredictBatch(ctx, []data.Patient{patient})
	if err != nil {
		return Prediction{}, err
	}
	return out[0], nil
}

// PredictBatch validates every patient before predicting any of them.
func (p *Predictor) PredictBatch(ctx context.Context, patients []data.Patient) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, nil
	}

	rows := make([][]string, len(patients))
	for i, patient := range patients {
		if err := patient.Validate(p.schema); err != nil {
			if len(patients) > 1 {
				return nil, fmt.Errorf("sample %d: %w", i+1, err)
			}
			return nil, err
		}
		rows[i] = patient.Row()
	}

	labels, err := p.pipe.Predict(rows)
	if err != nil {
		return nil, err
	}
	proba, err := p.pipe.PredictProba(rows)
	if err != nil {
		return nil, err
	}

	out := make([]Prediction, len(rows))
	for i := range rows {
		out[i] = Prediction{Predicted: labels[i], Top: pipeline.Rank(proba[i], p.topK)}
	}
	return out, nil
}

func (p *Predictor) Classes() []string {
	classes, _ := p.pipe.Classes()
	return classes
}

func (p *Predictor) Metadata() persistence.BundleMetadata {
	return p.metadata
}

func (p *Predictor) Schema() data.Schema {
	return p.schema
}
