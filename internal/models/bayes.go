package models

import (
	"math"

	"github.com/shopspring/decimal"
)

// NaiveBayes is a Gaussian naive Bayes classifier. Variances are smoothed by
// VarSmoothing times the largest feature variance.
type NaiveBayes struct {
	BaseModel
	NClasses       int
	ClassLogPriors map[int]float64
	FeatureMeans   map[int][]float64
	FeatureVars    map[int][]float64
	VarSmoothing   float64
}

func NewNaiveBayes(varSmoothing float64) *NaiveBayes {
	if varSmoothing <= 0 {
		varSmoothing = 1e-9
	}
	return &NaiveBayes{
		VarSmoothing: varSmoothing,
		BaseModel: BaseModel{
			Name: "NaiveBayes",
			Params: map[string]any{
				"var_smoothing": varSmoothing,
			},
		},
	}
}

func (nb *NaiveBayes) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}

	data := toFloat(X)
	nFeatures := len(data[0])
	nb.Classes = ExtractClasses(y)
	nb.NClasses = nb.Classes[len(nb.Classes)-1] + 1
	nb.ClassLogPriors = make(map[int]float64)
	nb.FeatureMeans = make(map[int][]float64)
	nb.FeatureVars = make(map[int][]float64)

	epsilon := nb.VarSmoothing * maxVariance(data)

	for _, class := range nb.Classes {
		var rows [][]float64
		for i, label := range y {
			if label == class {
				rows = append(rows, data[i])
			}
		}
		n := float64(len(rows))
		nb.ClassLogPriors[class] = math.Log(n / float64(len(y)))

		means := make([]float64, nFeatures)
		vars := make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			for _, row := range rows {
				means[j] += row[j]
			}
			means[j] /= n
			for _, row := range rows {
				diff := row[j] - means[j]
				vars[j] += diff * diff
			}
			vars[j] = vars[j]/n + epsilon
		}
		nb.FeatureMeans[class] = means
		nb.FeatureVars[class] = vars
	}

	return nil
}

func maxVariance(data [][]float64) float64 {
	best := 0.0
	n := float64(len(data))
	for j := range data[0] {
		mean := 0.0
		for _, row := range data {
			mean += row[j]
		}
		mean /= n
		v := 0.0
		for _, row := range data {
			v += (row[j] - mean) * (row[j] - mean)
		}
		best = math.Max(best, v/n)
	}
	if best == 0 {
		return 1
	}
	return best
}

func logGaussianPDF(x, mean, variance float64) float64 {
	diff := x - mean
	return -0.5*math.Log(2*math.Pi*variance) - (diff*diff)/(2*variance)
}

func (nb *NaiveBayes) Predict(X [][]decimal.Decimal) []int {
	proba := nb.PredictProba(X)
	predictions := make([]int, len(proba))
	for i, p := range proba {
		predictions[i] = argmax(p)
	}
	return predictions
}

// PredictProba returns posterior probabilities indexed by class.
func (nb *NaiveBayes) PredictProba(X [][]decimal.Decimal) [][]float64 {
	proba := make([][]float64, len(X))

	for i, sample := range toFloat(X) {
		logProbs := make([]float64, len(nb.Classes))
		maxLogProb := math.Inf(-1)
		for k, class := range nb.Classes {
			lp := nb.ClassLogPriors[class]
			for j, feature := range sample {
				lp += logGaussianPDF(feature, nb.FeatureMeans[class][j], nb.FeatureVars[class][j])
			}
			logProbs[k] = lp
			maxLogProb = math.Max(maxLogProb, lp)
		}

		sumExp := 0.0
		for _, lp := range logProbs {
			sumExp += math.Exp(lp - maxLogProb)
		}

		proba[i] = make([]float64, nb.NClasses)
		for k, class := range nb.Classes {
			proba[i][class] = math.Exp(logProbs[k]-maxLogProb) / sumExp
		}
	}

	return proba
}

func (nb *NaiveBayes) GetClasses() []int {
	return nb.Classes
}

func (nb *NaiveBayes) Reset() {
	nb.ClassLogPriors = nil
	nb.FeatureMeans = nil
	nb.FeatureVars = nil
	nb.Classes = nil
	nb.NClasses = 0
}
