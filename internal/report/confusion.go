package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// confusionGrid exposes a confusion matrix as a plotter.GridXYZ. Column c is
// the predicted label, row r counts from the bottom so that the first true
// label is drawn on top.
type confusionGrid struct {
	cm [][]int
}

func (g confusionGrid) Dims() (c, r int) { return len(g.cm), len(g.cm) }
func (g confusionGrid) X(c int) float64  { return float64(c) }
func (g confusionGrid) Y(r int) float64  { return float64(r) }
func (g confusionGrid) Z(c, r int) float64 {
	return float64(g.cm[len(g.cm)-1-r][c])
}

// PlotConfusionMatrix renders cm as an annotated heat map. labels name both
// axes in matrix order.
func PlotConfusionMatrix(path string, cm [][]int, labels []string) error {
	n := len(cm)
	if n == 0 || len(labels) != n {
		return fmt.Errorf("confusion matrix is %dx%d but %d labels given", n, n, len(labels))
	}

	p := plot.New()
	p.Title.Text = "Confusion Matrix"
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"

	grid := confusionGrid{cm: cm}
	heat := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	heat.Min, heat.Max = 0, 1
	for _, row := range cm {
		for _, v := range row {
			heat.Max = max(heat.Max, float64(v))
		}
	}
	p.Add(heat)

	cells := plotter.XYLabels{}
	xTicks := make([]plot.Tick, n)
	yTicks := make([]plot.Tick, n)
	for i := 0; i < n; i++ {
		xTicks[i] = plot.Tick{Value: float64(i), Label: labels[i]}
		yTicks[i] = plot.Tick{Value: float64(n - 1 - i), Label: labels[i]}
		for j := 0; j < n; j++ {
			cells.XYs = append(cells.XYs, plotter.XY{X: float64(j), Y: float64(n - 1 - i)})
			cells.Labels = append(cells.Labels, strconv.Itoa(cm[i][j]))
		}
	}

	counts, err := plotter.NewLabels(cells)
	if err != nil {
		return fmt.Errorf("failed to annotate confusion matrix: %w", err)
	}
	p.Add(counts)

	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Min, p.X.Max = -0.5, float64(n)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(n)-0.5

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	size := vg.Length(1.2*float64(n)+2) * vg.Inch
	if err := p.Save(size, size, path); err != nil {
		return fmt.Errorf("failed to save confusion matrix: %w", err)
	}
	return nil
}
