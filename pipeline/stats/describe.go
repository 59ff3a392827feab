// Package stats computes the descriptive, correlation, regression and
// inter-rater reliability reports over pipeline output tables.
package stats

import (
	"math"
	"sort"

	"github.com/charlie42/facets-validity/pipeline"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the non-null values of one column.
type Summary struct {
	Column string
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Q50    float64
	Q75    float64
	Max    float64
}

// Describe summarises each of columns, or every numeric column of t when
// columns is empty. Statistics of a column without values are NaN; the
// standard deviation needs at least two values.
func Describe(t *pipeline.Table, columns []string) []Summary {
	if len(columns) == 0 {
		columns = t.ColumnNames()
	}
	out := make([]Summary, 0, len(columns))
	for _, c := range columns {
		xs := Values(t, c)
		s := Summary{Column: c, Count: len(xs)}
		if len(xs) == 0 {
			nan := math.NaN()
			s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
			out = append(out, s)
			continue
		}
		sort.Float64s(xs)
		s.Mean = stat.Mean(xs, nil)
		s.Std = math.NaN()
		if len(xs) > 1 {
			s.Std = stat.StdDev(xs, nil)
		}
		s.Min = xs[0]
		s.Max = xs[len(xs)-1]
		s.Q25 = Quantile(xs, 0.25)
		s.Q50 = Quantile(xs, 0.5)
		s.Q75 = Quantile(xs, 0.75)
		out = append(out, s)
	}
	return out
}

// Values returns the non-null values of column in row order.
func Values(t *pipeline.Table, column string) []float64 {
	var xs []float64
	for _, r := range t.Rows {
		if v := r.Values[column]; v != nil {
			xs = append(xs, *v)
		}
	}
	return xs
}

// Quantile interpolates linearly between the closest ranks of sorted.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
