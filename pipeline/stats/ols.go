package stats

import (
	"fmt"
	"math"

	"github.com/charlie42/facets-validity/pipeline"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Coefficient is one fitted regressor.
type Coefficient struct {
	Name   string
	Coef   float64
	StdErr float64
	T      float64
	P      float64
}

// OLSResult is a least squares fit without intercept.
type OLSResult struct {
	Outcome      string
	N            int
	DF           int
	RSquared     float64
	SSR          float64
	Coefficients []Coefficient
}

// OLS regresses outcome on predictors without an intercept, using only the
// rows where every variable is present. R² is uncentered, as is usual for a
// model without a constant.
func OLS(t *pipeline.Table, outcome string, predictors []string) (OLSResult, error) {
	res := OLSResult{Outcome: outcome}
	vars := append([]string{outcome}, predictors...)
	for _, v := range vars {
		if !t.HasColumn(v) {
			return res, fmt.Errorf("OLS: no column %q", v)
		}
	}

	var y []float64
	var x []float64
	for _, r := range t.Rows {
		complete := true
		for _, v := range vars {
			if r.Values[v] == nil {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		y = append(y, *r.Values[outcome])
		for _, p := range predictors {
			x = append(x, *r.Values[p])
		}
	}
	n, p := len(y), len(predictors)
	if p == 0 {
		return res, fmt.Errorf("OLS: %s: no predictors", outcome)
	}
	if n <= p {
		return res, fmt.Errorf("OLS: %s: %d complete rows for %d predictors", outcome, n, p)
	}

	X := mat.NewDense(n, p, x)
	Y := mat.NewVecDense(n, y)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return res, fmt.Errorf("OLS: %s: singular design: %w", outcome, err)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), Y)
	var beta mat.VecDense
	beta.MulVec(&inv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	var ssr, sst float64
	for i := 0; i < n; i++ {
		e := y[i] - fitted.AtVec(i)
		ssr += e * e
		sst += y[i] * y[i]
	}

	df := n - p
	sigma2 := ssr / float64(df)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	res.N, res.DF, res.SSR = n, df, ssr
	res.RSquared = math.NaN()
	if sst > 0 {
		res.RSquared = 1 - ssr/sst
	}
	for j, name := range predictors {
		c := Coefficient{Name: name, Coef: beta.AtVec(j)}
		c.StdErr = math.Sqrt(sigma2 * inv.At(j, j))
		c.T = c.Coef / c.StdErr
		c.P = 2 * tdist.Survival(math.Abs(c.T))
		res.Coefficients = append(res.Coefficients, c)
	}
	return res, nil
}
