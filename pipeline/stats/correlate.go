package stats

import (
	"math"

	"github.com/charlie42/facets-validity/pipeline"
	"gonum.org/v1/gonum/stat"
)

// Matrix is a square matrix labelled by column names.
type Matrix struct {
	Columns []string
	Values  [][]float64
}

// Correlate returns the Pearson correlation of every pair of columns, using
// the rows where both are present. A pair with fewer than two such rows, or
// with a constant column, is NaN.
func Correlate(t *pipeline.Table, columns []string) Matrix {
	if len(columns) == 0 {
		columns = t.ColumnNames()
	}
	m := Matrix{Columns: columns, Values: make([][]float64, len(columns))}
	for i := range columns {
		m.Values[i] = make([]float64, len(columns))
	}
	for i := range columns {
		for j := i; j < len(columns); j++ {
			r := pairwise(t, columns[i], columns[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m
}

func pairwise(t *pipeline.Table, a, b string) float64 {
	var xs, ys []float64
	for _, r := range t.Rows {
		x, y := r.Values[a], r.Values[b]
		if x == nil || y == nil {
			continue
		}
		xs = append(xs, *x)
		ys = append(ys, *y)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}
