// Package stats computes the bivariate statistics shown in the correlation
// report: Pearson's r and an ordinary least squares trend with its
// confidence band.
package stats

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/stopcensus/internal/model"
)

// MinPairs is the fewest complete pairs a correlation or fit is defined on.
// Two points always lie on a line, so r would be a meaningless ±1.
const MinPairs = 3

// ErrTooFewPairs is returned when fewer than MinPairs complete pairs remain.
var ErrTooFewPairs = eris.New("stats: need at least three complete observation pairs")

// ErrNoVariance is returned when either column is constant.
var ErrNoVariance = eris.New("stats: column has zero variance")

// CompletePairs keeps the positions where both xs[i] and ys[i] are present.
func CompletePairs(xs, ys []model.Nullable) (x, y []float64) {
	n := min(len(xs), len(ys))
	x = make([]float64, 0, n)
	y = make([]float64, 0, n)
	for i := range n {
		if !xs[i].Valid || !ys[i].Valid {
			continue
		}
		x = append(x, xs[i].Value)
		y = append(y, ys[i].Value)
	}
	return x, y
}

// Column extracts one metric from every row, preserving order.
func Column(rows []model.Row, m model.Metric) []model.Nullable {
	out := make([]model.Nullable, len(rows))
	for i, r := range rows {
		out[i] = r.Value(m)
	}
	return out
}

// Pearson returns the Pearson correlation coefficient of x and y.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, eris.Errorf("stats: length mismatch %d != %d", len(x), len(y))
	}
	if len(x) < MinPairs {
		return 0, ErrTooFewPairs
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0, ErrNoVariance
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, ErrNoVariance
	}
	return r, nil
}

// Correlation is Pearson's r over the complete pairs of two metrics.
type Correlation struct {
	X model.Metric `json:"x"`
	Y model.Metric `json:"y"`
	R float64      `json:"r"`
	N int          `json:"n"`
}

// Correlate computes Pearson's r of metric y against metric x over the rows
// where both are present.
func Correlate(rows []model.Row, x, y model.Metric) (Correlation, error) {
	xs, ys := CompletePairs(Column(rows, x), Column(rows, y))
	r, err := Pearson(xs, ys)
	if err != nil {
		return Correlation{X: x, Y: y, N: len(xs)}, eris.Wrapf(err, "stats: correlate %s vs %s", x, y)
	}
	return Correlation{X: x, Y: y, R: r, N: len(xs)}, nil
}
