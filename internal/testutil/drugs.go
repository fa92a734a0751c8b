// Package testutil generates synthetic patient data for tests.
package testutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Header is the labelled CSV header.
const Header = "Age,Sex,BP,Cholesterol,Na_to_K,Drug"

// Label applies the rules the drug dataset follows.
func Label(age int, bp, cholesterol string, naToK float64) string {
	switch {
	case naToK > 14.83:
		return "DrugY"
	case bp == "HIGH" && age <= 50:
		return "drugA"
	case bp == "HIGH":
		return "drugB"
	case bp == "LOW" && cholesterol == "HIGH":
		return "drugC"
	default:
		return "drugX"
	}
}

// DrugRows returns n labelled rows. The first five rows cover every class.
func DrugRows(n int, seed int64) ([][]string, []string) {
	seeds := [][]any{
		{30, "M", "NORMAL", "NORMAL", 25.0},
		{40, "F", "HIGH", "NORMAL", 10.0},
		{60, "M", "HIGH", "HIGH", 9.5},
		{35, "F", "LOW", "HIGH", 8.0},
		{50, "M", "NORMAL", "HIGH", 11.0},
	}

	rng := rand.New(rand.NewSource(seed))
	rows := make([][]string, 0, n)
	labels := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var age int
		var sex, bp, chol string
		var ratio float64
		if i < len(seeds) {
			s := seeds[i]
			age, sex, bp, chol, ratio = s[0].(int), s[1].(string), s[2].(string), s[3].(string), s[4].(float64)
		} else {
			age = 15 + rng.Intn(60)
			sex = []string{"M", "F"}[rng.Intn(2)]
			bp = []string{"HIGH", "LOW", "NORMAL"}[rng.Intn(3)]
			chol = []string{"HIGH", "NORMAL"}[rng.Intn(2)]
			if rng.Float64() < 0.5 {
				ratio = 6.2 + rng.Float64()*8.5
			} else {
				ratio = 15 + rng.Float64()*23
			}
		}
		ratio = float64(int(ratio*1000)) / 1000
		rows = append(rows, []string{fmt.Sprint(age), sex, bp, chol, fmt.Sprintf("%.3f", ratio)})
		labels = append(labels, Label(age, bp, chol, ratio))
	}
	return rows, labels
}

// WriteDrugCSV writes n labelled rows to dir/drug.csv and returns its path.
func WriteDrugCSV(t testing.TB, dir string, n int, seed int64) string {
	t.Helper()
	rows, labels := DrugRows(n, seed)

	var b strings.Builder
	b.WriteString(Header + "\n")
	for i, row := range rows {
		b.WriteString(strings.Join(row, ",") + "," + labels[i] + "\n")
	}

	path := filepath.Join(dir, "drug.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
