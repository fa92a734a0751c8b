// Package pipeline composes preprocessing and a classifier into a single
// fit/predict unit that operates on raw patient rows and string labels.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"drugclassifier/internal/data"
	"drugclassifier/internal/models"
	"drugclassifier/internal/preprocessing"
)

var ErrNotFitted = errors.New("pipeline is not fitted")

type Config struct {
	Categorical []int
	Numeric     []int
	ScaleType   string
	Model       models.ModelConfig
}

// DefaultConfig encodes Sex, BP and Cholesterol, imputes and scales Age and
// Na_to_K, and fits a 100-tree forest.
func DefaultConfig() Config {
	schema := data.DrugSchema()
	return Config{
		Categorical: schema.Indices(data.Categorical),
		Numeric:     schema.Indices(data.Numeric),
		ScaleType:   preprocessing.ScaleStandard,
		Model:       models.DefaultConfig("forest"),
	}
}

type Pipeline struct {
	Preprocessor *preprocessing.ColumnTransformer
	Model        models.Model
	Labels       *preprocessing.LabelEncoder
	Features     []string
}

type ClassProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"confidence"`
}

func New(cfg Config) (*Pipeline, error) {
	model, err := models.CreateModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Preprocessor: preprocessing.NewColumnTransformer(cfg.Categorical, cfg.Numeric, cfg.ScaleType),
		Model:        model,
		Labels:       preprocessing.NewLabelEncoder(),
	}, nil
}

func (p *Pipeline) Fit(rows [][]string, labels []string) error {
	return p.FitContext(context.Background(), rows, labels)
}

// FitContext is Fit with cancellation. Models that cannot be interrupted
// mid-fit are still skipped when ctx is already done.
func (p *Pipeline) FitContext(ctx context.Context, rows [][]string, labels []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rows) != len(labels) {
		return fmt.Errorf("rows and labels have different lengths: %d vs %d", len(rows), len(labels))
	}

	y, err := p.Labels.FitTransform(labels)
	if err != nil {
		return fmt.Errorf("label encoding: %w", err)
	}

	X, err := p.Preprocessor.FitTransform(rows)
	if err != nil {
		return fmt.Errorf("preprocessing: %w", err)
	}

	p.Model.Reset()
	if cf, ok := p.Model.(models.ContextFitter); ok {
		err = cf.FitContext(ctx, X, y)
	} else {
		err = p.Model.Fit(X, y)
	}
	if err != nil {
		return fmt.Errorf("model %s: %w", p.Model.GetName(), err)
	}

	p.Features = p.Preprocessor.FeatureNames(data.DrugSchema().FeatureNames())
	return nil
}

// Predict returns one training label per row.
func (p *Pipeline) Predict(rows [][]string) ([]string, error) {
	if !p.fitted() {
		return nil, ErrNotFitted
	}

	X, err := p.Preprocessor.Transform(rows)
	if err != nil {
		return nil, err
	}
	return p.Labels.InverseTransform(p.Model.Predict(X))
}

// PredictProba returns, per row, the probability of every class in
// Classes order.
func (p *Pipeline) PredictProba(rows [][]string) ([][]ClassProbability, error) {
	if !p.fitted() {
		return nil, ErrNotFitted
	}

	X, err := p.Preprocessor.Transform(rows)
	if err != nil {
		return nil, err
	}

	classes := p.Labels.Classes()
	proba := p.Model.PredictProba(X)
	out := make([][]ClassProbability, len(proba))
	for i, row := range proba {
		out[i] = make([]ClassProbability, len(classes))
		for c, label := range classes {
			var pr float64
			if c < len(row) {
				pr = row[c]
			}
			out[i][c] = ClassProbability{Label: label, Probability: pr}
		}
	}
	return out, nil
}

// Top returns the k most probable classes for a single row, most probable
// first. Ties keep class order.
func (p *Pipeline) Top(row []string, k int) ([]ClassProbability, error) {
	proba, err := p.PredictProba([][]string{row})
	if err != nil {
		return nil, err
	}

	return Rank(proba[0], k), nil
}

// Rank sorts probs in place, most probable first, and keeps the first k
// (all when k <= 0). Ties keep class order.
func Rank(probs []ClassProbability, k int) []ClassProbability {
	sort.SliceStable(probs, func(a, b int) bool { return probs[a].Probability > probs[b].Probability })
	if k > 0 && k < len(probs) {
		probs = probs[:k]
	}
	return probs
}

// Classes reports the labels the pipeline can predict. ok is false until the
// pipeline has been fitted.
func (p *Pipeline) Classes() (labels []string, ok bool) {
	if !p.fitted() {
		return nil, false
	}
	return p.Labels.Classes(), true
}

func (p *Pipeline) Params() map[string]any {
	return p.Model.GetParams()
}

func (p *Pipeline) fitted() bool {
	return p != nil && p.Labels != nil && p.Labels.IsFitted &&
		p.Preprocessor != nil && p.Preprocessor.IsFitted &&
		p.Model != nil && len(p.Model.GetClasses()) > 0
}
