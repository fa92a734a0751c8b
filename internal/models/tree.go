package models

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
)

type TreeNode struct {
	IsLeaf    bool
	Class     int
	Feature   int
	Threshold decimal.Decimal
	Left      *TreeNode
	Right     *TreeNode
	Samples   int
	Impurity  float64
	// Value is the class distribution of the training samples reaching the
	// node, indexed by class.
	Value []float64
}

// DecisionTree is a CART classifier using Gini impurity. Samples with
// feature <= threshold go left.
type DecisionTree struct {
	BaseModel
	Root            *TreeNode
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures bounds the features examined per split; 0 examines all.
	MaxFeatures int
	Seed        int64
	NClasses    int

	rng *rand.Rand
}

var two = decimal.NewFromInt(2)

func NewDecisionTree(maxDepth, minSamplesSplit int) *DecisionTree {
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}

	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		BaseModel: BaseModel{
			Name: "DecisionTree",
			Params: map[string]any{
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
			},
		},
	}
}

func (dt *DecisionTree) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}

	dt.Classes = ExtractClasses(y)
	if maxClass := dt.Classes[len(dt.Classes)-1]; dt.NClasses <= maxClass {
		dt.NClasses = maxClass + 1
	}
	dt.rng = rand.New(rand.NewSource(dt.Seed))

	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}
	dt.Root = dt.buildTree(X, y, indices, 0)
	dt.rng = nil
	return nil
}

func (dt *DecisionTree) buildTree(X [][]decimal.Decimal, y []int, indices []int, depth int) *TreeNode {
	counts := dt.classCounts(y, indices)
	n := float64(len(indices))

	node := &TreeNode{
		Samples:  len(indices),
		Impurity: gini(counts, n),
		Value:    make([]float64, len(counts)),
		Class:    argmax(counts),
	}
	for c, count := range counts {
		node.Value[c] = count / n
	}

	if (dt.MaxDepth > 0 && depth >= dt.MaxDepth) ||
		len(indices) < dt.MinSamplesSplit ||
		node.Impurity == 0 {
		node.IsLeaf = true
		return node
	}

	feature, threshold, ok := dt.findBestSplit(X, y, indices, counts, node.Impurity)
	if !ok {
		node.IsLeaf = true
		return node
	}

	var left, right []int
	for _, idx := range indices {
		if X[idx][feature].LessThanOrEqual(threshold) {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = dt.buildTree(X, y, left, depth+1)
	node.Right = dt.buildTree(X, y, right, depth+1)

	return node
}

// findBestSplit scans candidate features in random order. At least
// MaxFeatures features are examined, and the scan continues past that until
// some valid split is found.
func (dt *DecisionTree) findBestSplit(X [][]decimal.Decimal, y []int, indices []int, parentCounts []float64, parentImpurity float64) (int, decimal.Decimal, bool) {
	nFeatures := len(X[indices[0]])
	features := dt.candidateFeatures(nFeatures)
	limit := dt.MaxFeatures
	if limit <= 0 || limit > nFeatures {
		limit = nFeatures
	}

	n := float64(len(indices))
	bestFeature := -1
	bestThreshold := decimal.Zero
	bestDecrease := 0.0

	sorted := make([]int, len(indices))
	left := make([]float64, len(parentCounts))
	right := make([]float64, len(parentCounts))

	for pos, feature := range features {
		if pos >= limit && bestFeature >= 0 {
			break
		}

		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return X[sorted[a]][feature].LessThan(X[sorted[b]][feature])
		})

		for c := range left {
			left[c] = 0
		}
		copy(right, parentCounts)

		for k := 0; k < len(sorted)-1; k++ {
			class := y[sorted[k]]
			left[class]++
			right[class]--

			current := X[sorted[k]][feature]
			next := X[sorted[k+1]][feature]
			if current.Equal(next) {
				continue
			}

			nLeft := float64(k + 1)
			nRight := n - nLeft
			weighted := (nLeft/n)*gini(left, nLeft) + (nRight/n)*gini(right, nRight)
			decrease := parentImpurity - weighted

			if bestFeature < 0 || decrease > bestDecrease {
				bestFeature = feature
				bestDecrease = decrease
				bestThreshold = current.Add(next).Div(two)
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func (dt *DecisionTree) candidateFeatures(nFeatures int) []int {
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	if dt.MaxFeatures <= 0 || dt.MaxFeatures >= nFeatures || dt.rng == nil {
		return features
	}

	for i := 0; i < nFeatures-1; i++ {
		j := i + dt.rng.Intn(nFeatures-i)
		features[i], features[j] = features[j], features[i]
	}
	return features
}

func (dt *DecisionTree) Predict(X [][]decimal.Decimal) []int {
	predictions := make([]int, len(X))
	for i, sample := range X {
		predictions[i] = dt.leaf(sample).Class
	}
	return predictions
}

// PredictProba returns class probabilities indexed by class.
func (dt *DecisionTree) PredictProba(X [][]decimal.Decimal) [][]float64 {
	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = dt.classProba(sample)
	}
	return proba
}

func (dt *DecisionTree) classProba(sample []decimal.Decimal) []float64 {
	leaf := dt.leaf(sample)
	out := make([]float64, dt.NClasses)
	copy(out, leaf.Value)
	return out
}

func (dt *DecisionTree) leaf(sample []decimal.Decimal) *TreeNode {
	node := dt.Root
	for !node.IsLeaf {
		if sample[node.Feature].LessThanOrEqual(node.Threshold) {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// Depth returns the length of the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	var walk func(*TreeNode) int
	walk = func(node *TreeNode) int {
		if node == nil || node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.Left), walk(node.Right))
	}
	return walk(dt.Root)
}

func (dt *DecisionTree) GetClasses() []int {
	return dt.Classes
}

func (dt *DecisionTree) Reset() {
	dt.Root = nil
	dt.Classes = nil
	dt.NClasses = 0
}

func (dt *DecisionTree) classCounts(y []int, indices []int) []float64 {
	counts := make([]float64, dt.NClasses)
	for _, idx := range indices {
		counts[y[idx]]++
	}
	return counts
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0.0
	}

	impurity := 1.0
	for _, count := range counts {
		p := count / n
		impurity -= p * p
	}
	return impurity
}
