package models

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

type KNN struct {
	BaseModel
	K        int
	Distance string
	NClasses int
	XTrain   [][]float64
	YTrain   []int
}

func NewKNN(k int, distance string) *KNN {
	if k <= 0 {
		k = 5
	}
	if distance != "euclidean" && distance != "manhattan" {
		distance = "euclidean"
	}

	return &KNN{
		K:        k,
		Distance: distance,
		BaseModel: BaseModel{
			Name: "KNN",
			Params: map[string]any{
				"k":        k,
				"distance": distance,
			},
		},
	}
}

func (knn *KNN) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}

	knn.XTrain = toFloat(X)
	knn.YTrain = make([]int, len(y))
	copy(knn.YTrain, y)

	knn.Classes = ExtractClasses(y)
	knn.NClasses = knn.Classes[len(knn.Classes)-1] + 1
	return nil
}

func (knn *KNN) Predict(X [][]decimal.Decimal) []int {
	proba := knn.PredictProba(X)
	predictions := make([]int, len(proba))
	for i, p := range proba {
		predictions[i] = argmax(p)
	}
	return predictions
}

// PredictProba returns neighbour vote shares indexed by class.
func (knn *KNN) PredictProba(X [][]decimal.Decimal) [][]float64 {
	proba := make([][]float64, len(X))
	for i, sample := range toFloat(X) {
		neighbors := knn.findNeighbors(sample)
		p := make([]float64, knn.NClasses)
		for _, idx := range neighbors {
			p[knn.YTrain[idx]] += 1 / float64(len(neighbors))
		}
		proba[i] = p
	}
	return proba
}

// findNeighbors returns the indices of the k closest training rows. Equal
// distances keep training order.
func (knn *KNN) findNeighbors(sample []float64) []int {
	type neighbor struct {
		index    int
		distance float64
	}

	neighbors := make([]neighbor, len(knn.XTrain))
	for i, trainSample := range knn.XTrain {
		neighbors[i] = neighbor{index: i, distance: knn.calculateDistance(sample, trainSample)}
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})

	k := min(knn.K, len(neighbors))
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = neighbors[i].index
	}
	return out
}

func (knn *KNN) calculateDistance(a, b []float64) float64 {
	sum := 0.0
	switch knn.Distance {
	case "manhattan":
		for i := range a {
			sum += math.Abs(a[i] - b[i])
		}
		return sum
	default:
		for i := range a {
			diff := a[i] - b[i]
			sum += diff * diff
		}
		return math.Sqrt(sum)
	}
}

func (knn *KNN) GetClasses() []int {
	return knn.Classes
}

func (knn *KNN) Reset() {
	knn.XTrain = nil
	knn.YTrain = nil
	knn.Classes = nil
	knn.NClasses = 0
}

func toFloat(X [][]decimal.Decimal) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v.InexactFloat64()
		}
	}
	return out
}
