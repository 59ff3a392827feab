package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// ICCResult is the one-way random effects, single rater intraclass
// correlation with its F test and 95% confidence interval.
type ICCResult struct {
	Item    string
	ICC     float64
	F       float64
	DF1     int
	DF2     int
	P       float64
	CILower float64
	CIUpper float64
	Targets int
	Raters  int
}

// ICC1 computes ICC(1) for a targets × raters matrix without missing cells.
func ICC1(ratings [][]float64) (ICCResult, error) {
	var res ICCResult
	n := len(ratings)
	if n < 2 {
		return res, fmt.Errorf("ICC1: need at least two targets, got %d", n)
	}
	k := len(ratings[0])
	if k < 2 {
		return res, fmt.Errorf("ICC1: need at least two raters, got %d", k)
	}
	var grand float64
	means := make([]float64, n)
	for i, row := range ratings {
		if len(row) != k {
			return res, fmt.Errorf("ICC1: target %d has %d ratings, want %d", i, len(row), k)
		}
		for _, v := range row {
			means[i] += v
		}
		grand += means[i]
		means[i] /= float64(k)
	}
	grand /= float64(n * k)

	var ssb, ssw float64
	for i, row := range ratings {
		d := means[i] - grand
		ssb += float64(k) * d * d
		for _, v := range row {
			e := v - means[i]
			ssw += e * e
		}
	}
	df1, df2 := n-1, n*(k-1)
	msb := ssb / float64(df1)
	msw := ssw / float64(df2)
	res.DF1, res.DF2, res.Targets, res.Raters = df1, df2, n, k

	if msw == 0 {
		res.ICC, res.P, res.CILower, res.CIUpper = 1, 0, 1, 1
		return res, nil
	}
	kf := float64(k)
	res.ICC = (msb - msw) / (msb + (kf-1)*msw)
	res.F = msb / msw
	res.P = distuv.F{D1: float64(df1), D2: float64(df2)}.Survival(res.F)

	fl := res.F / distuv.F{D1: float64(df1), D2: float64(df2)}.Quantile(0.975)
	fu := res.F * distuv.F{D1: float64(df2), D2: float64(df1)}.Quantile(0.975)
	res.CILower = (fl - 1) / (fl + kf - 1)
	res.CIUpper = (fu - 1) / (fu + kf - 1)
	return res, nil
}
