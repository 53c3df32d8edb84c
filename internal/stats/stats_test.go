package stats

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stopcensus/internal/model"
)

// pearsonByHand is the textbook formula, kept independent of gonum.
func pearsonByHand(x, y []float64) float64 {
	n := float64(len(x))
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var sxy, sxx, syy float64
	for i := range x {
		sxy += (x[i] - mx) * (y[i] - my)
		sxx += (x[i] - mx) * (x[i] - mx)
		syy += (y[i] - my) * (y[i] - my)
	}
	return sxy / math.Sqrt(sxx*syy)
}

func TestPearson_MatchesFormula(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{2.1, 3.9, 6.2, 7.8, 9.7, 12.5}

	r, err := Pearson(x, y)
	require.NoError(t, err)
	assert.InDelta(t, pearsonByHand(x, y), r, 1e-12)
}

func TestPearson_Symmetric(t *testing.T) {
	x := []float64{0.3, 1.2, 0.8, 2.5, 1.9}
	y := []float64{41000, 52000, 38000, 61000, 47000}

	rxy, err := Pearson(x, y)
	require.NoError(t, err)
	ryx, err := Pearson(y, x)
	require.NoError(t, err)
	assert.InDelta(t, rxy, ryx, 1e-12)
}

func TestPearson_PerfectLines(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	r, err := Pearson(x, []float64{2, 4, 6, 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-12)

	r, err = Pearson(x, []float64{8, 6, 4, 2})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, r, 1e-12)
}

func TestPearson_Errors(t *testing.T) {
	_, err := Pearson([]float64{1}, []float64{2})
	assert.True(t, eris.Is(err, ErrTooFewPairs))

	// Two pairs would always give r = ±1.
	_, err = Pearson([]float64{1, 2}, []float64{5, 3})
	assert.True(t, eris.Is(err, ErrTooFewPairs))

	_, err = Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.True(t, eris.Is(err, ErrNoVariance))

	_, err = Pearson([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestCompletePairs_DropsNulls(t *testing.T) {
	xs := []model.Nullable{model.Some(1), model.Null(), model.Some(3), model.Some(4)}
	ys := []model.Nullable{model.Some(10), model.Some(20), model.Null(), model.Some(40)}

	x, y := CompletePairs(xs, ys)

	assert.Equal(t, []float64{1, 4}, x)
	assert.Equal(t, []float64{10, 40}, y)
}

func TestCorrelate_UsesCompletePairsOnly(t *testing.T) {
	rows := []model.Row{
		{StopDensity: model.Some(1), VehicleRatio: model.Some(0.9)},
		{StopDensity: model.Some(2), VehicleRatio: model.Some(0.7)},
		{StopDensity: model.Null(), VehicleRatio: model.Some(0.1)},
		{StopDensity: model.Some(3), VehicleRatio: model.Null()},
		{StopDensity: model.Some(4), VehicleRatio: model.Some(0.2)},
	}

	c, err := Correlate(rows, model.MetricStopDensity, model.MetricVehicleRatio)
	require.NoError(t, err)

	assert.Equal(t, 3, c.N)
	assert.InDelta(t, pearsonByHand([]float64{1, 2, 4}, []float64{0.9, 0.7, 0.2}), c.R, 1e-12)

	back, err := Correlate(rows, model.MetricVehicleRatio, model.MetricStopDensity)
	require.NoError(t, err)
	assert.InDelta(t, c.R, back.R, 1e-12)
}

func TestFitOLS_ExactLine(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{1, 3, 5, 7, 9}

	f, err := FitOLS(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, f.Intercept, 1e-9)
	assert.InDelta(t, 2.0, f.Slope, 1e-9)
	assert.InDelta(t, 11.0, f.Predict(5), 1e-9)

	// No residual error collapses the band onto the line.
	lo, hi := f.Band(2, 0.95)
	assert.InDelta(t, 5.0, lo, 1e-9)
	assert.InDelta(t, 5.0, hi, 1e-9)
}

func TestFitOLS_BandWidensAwayFromMean(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := []float64{2.3, 3.8, 6.4, 7.7, 10.4, 11.6, 14.5, 15.9}

	f, err := FitOLS(x, y)
	require.NoError(t, err)

	loMid, hiMid := f.Band(4.5, 0.95)
	loEdge, hiEdge := f.Band(8, 0.95)
	assert.Less(t, loMid, f.Predict(4.5))
	assert.Greater(t, hiMid, f.Predict(4.5))
	assert.Greater(t, hiEdge-loEdge, hiMid-loMid)

	band := ConfidenceBand(f, 1, 8, 10, 0.95)
	assert.Len(t, band, 11)
	assert.InDelta(t, 1.0, band[0].X, 1e-12)
	assert.InDelta(t, 8.0, band[10].X, 1e-12)
	for _, p := range band {
		assert.LessOrEqual(t, p.Lo, p.Y)
		assert.GreaterOrEqual(t, p.Hi, p.Y)
	}
}

func TestFitOLS_Errors(t *testing.T) {
	_, err := FitOLS([]float64{1, 2}, []float64{1, 2})
	assert.True(t, eris.Is(err, ErrTooFewPairs))

	_, err = FitOLS([]float64{2, 2, 2}, []float64{1, 2, 3})
	assert.True(t, eris.Is(err, ErrNoVariance))
}
