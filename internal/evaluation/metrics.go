package evaluation

import (
	"fmt"
	"math"
	"sort"
)

type ClassificationMetrics struct {
	Accuracy          float64                 `json:"accuracy"`
	BalancedAccuracy  float64                 `json:"balanced_accuracy"`
	MacroPrecision    float64                 `json:"macro_precision"`
	MacroRecall       float64                 `json:"macro_recall"`
	MacroF1           float64                 `json:"macro_f1"`
	WeightedPrecision float64                 `json:"weighted_precision"`
	WeightedRecall    float64                 `json:"weighted_recall"`
	WeightedF1        float64                 `json:"weighted_f1"`
	PerClassMetrics   map[string]ClassMetrics `json:"per_class_metrics"`
	// ConfusionMatrix[i][j] counts samples of Labels[i] predicted as Labels[j].
	ConfusionMatrix [][]int  `json:"confusion_matrix"`
	Labels          []string `json:"labels"`
	NumSamples      int      `json:"num_samples"`
	NumClasses      int      `json:"num_classes"`
}

type ClassMetrics struct {
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1Score     float64 `json:"f1_score"`
	Specificity float64 `json:"specificity"`
	Support     int     `json:"support"`
}

// CalculateMetrics scores predictions against ground truth. labels fixes the
// confusion matrix order. Macro averages run only over the labels that occur
// in yTrue or yPred, so a class absent from both does not drag them down.
func CalculateMetrics(yTrue, yPred []string, labels []string) (*ClassificationMetrics, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("y_true and y_pred have different lengths: %d vs %d", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("no samples to evaluate")
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels to evaluate")
	}

	numSamples := len(yTrue)
	numClasses := len(labels)

	confusionMatrix := BuildConfusionMatrix(yTrue, yPred, labels)

	classSupport := make(map[string]int)
	for _, class := range yTrue {
		classSupport[class]++
	}

	observed := make(map[string]bool)
	for _, l := range ObservedLabels(yTrue, yPred) {
		observed[l] = true
	}

	perClassMetrics := make(map[string]ClassMetrics)
	var macroPrec, macroRec, macroF1 float64
	numObserved := 0
	var weightedPrec, weightedRec, weightedF1 float64
	totalSupport := 0

	for i, class := range labels {
		tp := confusionMatrix[i][i]
		fp, fn, tn := 0, 0, 0

		for j := range labels {
			if j != i {
				fp += confusionMatrix[j][i]
				fn += confusionMatrix[i][j]
			}
		}

		for j := range labels {
			for k := range labels {
				if j != i && k != i {
					tn += confusionMatrix[j][k]
				}
			}
		}

		precision := safeDivide(float64(tp), float64(tp+fp))
		recall := safeDivide(float64(tp), float64(tp+fn))
		f1 := safeDivide(2*precision*recall, precision+recall)
		specificity := safeDivide(float64(tn), float64(tn+fp))

		support := classSupport[class]
		perClassMetrics[class] = ClassMetrics{
			Precision:   precision,
			Recall:      recall,
			F1Score:     f1,
			Specificity: specificity,
			Support:     support,
		}

		if observed[class] {
			macroPrec += precision
			macroRec += recall
			macroF1 += f1
			numObserved++
		}

		weightedPrec += precision * float64(support)
		weightedRec += recall * float64(support)
		weightedF1 += f1 * float64(support)
		totalSupport += support
	}

	macroPrec = safeDivide(macroPrec, float64(numObserved))
	macroRec = safeDivide(macroRec, float64(numObserved))
	macroF1 = safeDivide(macroF1, float64(numObserved))

	weightedPrec = safeDivide(weightedPrec, float64(totalSupport))
	weightedRec = safeDivide(weightedRec, float64(totalSupport))
	weightedF1 = safeDivide(weightedF1, float64(totalSupport))

	correct := 0
	for i, pred := range yPred {
		if pred == yTrue[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(numSamples)

	return &ClassificationMetrics{
		Accuracy:          accuracy,
		BalancedAccuracy:  macroRec,
		MacroPrecision:    macroPrec,
		MacroRecall:       macroRec,
		MacroF1:           macroF1,
		WeightedPrecision: weightedPrec,
		WeightedRecall:    weightedRec,
		WeightedF1:        weightedF1,
		PerClassMetrics:   perClassMetrics,
		ConfusionMatrix:   confusionMatrix,
		Labels:            labels,
		NumSamples:        numSamples,
		NumClasses:        numClasses,
	}, nil
}

func BuildConfusionMatrix(yTrue, yPred []string, labels []string) [][]int {
	numClasses := len(labels)
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	classToIdx := make(map[string]int)
	for i, class := range labels {
		classToIdx[class] = i
	}

	for i := range yTrue {
		trueIdx, trueOk := classToIdx[yTrue[i]]
		predIdx, predOk := classToIdx[yPred[i]]
		if trueOk && predOk {
			matrix[trueIdx][predIdx]++
		}
	}

	return matrix
}

// ObservedLabels is the sorted union of labels seen in y_true and y_pred.
func ObservedLabels(yTrue, yPred []string) []string {
	seen := make(map[string]bool)
	for _, l := range yTrue {
		seen[l] = true
	}
	for _, l := range yPred {
		seen[l] = true
	}

	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0.0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0.0
	}
	return result
}

func (m *ClassificationMetrics) FormatMetrics() string {
	result := fmt.Sprintf("Accuracy: %.4f\n", m.Accuracy)
	result += fmt.Sprintf("Balanced Accuracy: %.4f\n", m.BalancedAccuracy)
	result += fmt.Sprintf("Macro Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.MacroPrecision, m.MacroRecall, m.MacroF1)
	result += fmt.Sprintf("Weighted Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.WeightedPrecision, m.WeightedRecall, m.WeightedF1)
	return result
}
