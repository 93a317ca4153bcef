package tree

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// IndependenceTest tests the association of x and y with the linear
// statistic T = Σ x_i y_i standardized by its conditional mean and variance
// under the permutation null. For a single numeric x and y the
// standardized statistic is c = sqrt(n-1) · pearson(x, y), asymptotically
// N(0, 1). The returned p-value is two-sided.
//
// A constant x or y, or fewer than two observations, gives c = 0 and p = 1.
func IndependenceTest(x, y []float64) (c, p float64) {
	return independence(len(x), func(i int) float64 { return x[i] }, func(i int) float64 { return y[i] })
}

// independence works on accessors so that callers can test row subsets
// without copying.
func independence(n int, x, y func(i int) float64) (c, p float64) {
	if n < 2 {
		return 0, 1
	}
	var sx, sy float64
	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		xi, yi := x(i), y(i)
		sx += xi
		sy += yi
		xMin, xMax = math.Min(xMin, xi), math.Max(xMax, xi)
		yMin, yMax = math.Min(yMin, yi), math.Max(yMax, yi)
	}
	if xMin == xMax || yMin == yMax {
		return 0, 1
	}
	mx, my := sx/float64(n), sy/float64(n)
	var sxx, syy, sxy float64
	for i := 0; i < n; i++ {
		dx, dy := x(i)-mx, y(i)-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx <= 0 || syy <= 0 {
		return 0, 1
	}
	c = sxy * math.Sqrt(float64(n-1)) / math.Sqrt(sxx*syy)
	return c, twoSided(c)
}

// twoSided returns P(|Z| >= |c|) for standard normal Z.
func twoSided(c float64) float64 {
	return 2 * distuv.UnitNormal.CDF(-math.Abs(c))
}

// twoSample is the standardized linear statistic of a binary split that
// puts nLeft of n observations on the left. sumLeft is Σ_{left} (y - ȳ) and
// syy is Σ (y - ȳ)² over the node.
func twoSample(sumLeft, syy float64, nLeft, n int) float64 {
	nl, nn := float64(nLeft), float64(n)
	v := (syy / nn) * nl * (nn - nl) / (nn - 1)
	if v <= 0 {
		return 0
	}
	return sumLeft / math.Sqrt(v)
}
