// Package report writes the human-facing outputs of a training run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMetrics renders "Accuracy = <a>, F1 Score = <f>" with both values
// rounded to four decimals.
func FormatMetrics(accuracy, f1 float64) string {
	return fmt.Sprintf("Accuracy = %s, F1 Score = %s", round4(accuracy), round4(f1))
}

// FormatSummary is the one-line console summary: accuracy as a percentage
// and F1 to two decimals.
func FormatSummary(accuracy, f1 float64) string {
	pct := decimal.NewFromFloat(accuracy).Mul(decimal.NewFromInt(100)).Round(2)
	return fmt.Sprintf("Accuracy: %s%%  F1: %s", shortest(pct), shortest(decimal.NewFromFloat(f1).Round(2)))
}

func WriteMetrics(path string, accuracy, f1 float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(FormatMetrics(accuracy, f1)), 0o644); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func round4(v float64) string {
	return shortest(decimal.NewFromFloat(v).Round(4))
}

// shortest prints d without trailing zeros but with at least one
// fractional digit, e.g. 1 -> "1.0", 0.9500 -> "0.95".
func shortest(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
