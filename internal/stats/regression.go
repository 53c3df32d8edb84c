package stats

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Fit is a simple linear regression y = Intercept + Slope*x.
type Fit struct {
	Intercept float64
	Slope     float64
	N         int

	meanX float64
	sxx   float64 // sum of squared x deviations
	se    float64 // residual standard error
}

// FitOLS fits an ordinary least squares line through (x, y).
func FitOLS(x, y []float64) (Fit, error) {
	if len(x) != len(y) {
		return Fit{}, eris.Errorf("stats: length mismatch %d != %d", len(x), len(y))
	}
	if len(x) < MinPairs {
		return Fit{}, ErrTooFewPairs
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)

	meanX := stat.Mean(x, nil)
	var sxx, sse float64
	for i := range x {
		dx := x[i] - meanX
		sxx += dx * dx
		res := y[i] - (alpha + beta*x[i])
		sse += res * res
	}
	if sxx == 0 {
		return Fit{}, ErrNoVariance
	}

	return Fit{
		Intercept: alpha,
		Slope:     beta,
		N:         len(x),
		meanX:     meanX,
		sxx:       sxx,
		se:        math.Sqrt(sse / float64(len(x)-2)),
	}, nil
}

// Predict returns the fitted value at x.
func (f Fit) Predict(x float64) float64 {
	return f.Intercept + f.Slope*x
}

// Band returns the confidence interval for the mean response at x.
// level is the two-sided confidence level, e.g. 0.95.
func (f Fit) Band(x, level float64) (lo, hi float64) {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(f.N - 2)}.Quantile(1 - (1-level)/2)
	dx := x - f.meanX
	half := t * f.se * math.Sqrt(1/float64(f.N)+dx*dx/f.sxx)
	y := f.Predict(x)
	return y - half, y + half
}

// BandPoint is one sample of a confidence band.
type BandPoint struct {
	X, Y, Lo, Hi float64
}

// ConfidenceBand samples the fit and its band at steps+1 evenly spaced
// points between xmin and xmax.
func ConfidenceBand(f Fit, xmin, xmax float64, steps int, level float64) []BandPoint {
	if steps < 1 {
		steps = 1
	}
	out := make([]BandPoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		x := xmin + (xmax-xmin)*float64(i)/float64(steps)
		lo, hi := f.Band(x, level)
		out = append(out, BandPoint{X: x, Y: f.Predict(x), Lo: lo, Hi: hi})
	}
	return out
}
