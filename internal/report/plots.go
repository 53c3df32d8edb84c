package report

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/stopcensus/internal/model"
	"github.com/sells-group/stopcensus/internal/stats"
)

// Pair is one correlation plot.
type Pair struct {
	X, Y model.Metric
	File string
}

// Pairs are the correlation plots every report carries.
var Pairs = []Pair{
	{X: model.MetricStopDensity, Y: model.MetricVehicleRatio, File: "corr_density_vehicle.png"},
	{X: model.MetricStopCount, Y: model.MetricAverageIncome, File: "corr_count_income.png"},
	{X: model.MetricStopDensity, Y: model.MetricAverageIncome, File: "corr_density_income.png"},
}

// PlotOptions sizes the PNG output.
type PlotOptions struct {
	WidthIn, HeightIn float64
	Level             float64 // confidence level of the band, default 0.95
}

// CorrelationResult records one plotted pair.
type CorrelationResult struct {
	stats.Correlation
	File  string     `json:"file"`
	Valid bool       `json:"valid"`
	Fit   *stats.Fit `json:"-"`
}

// Line renders the stdout summary for the pair.
func (c CorrelationResult) Line() string {
	r := "n/a"
	if c.Valid {
		r = fmt.Sprintf("%.4f", c.R)
	}
	return fmt.Sprintf("pearson %s vs %s: r=%s n=%d", c.X, c.Y, r, c.N)
}

// WriteCorrelations draws one scatter plot per pair with its OLS line and a
// confidence band for the mean response, and prints Pearson's r for each
// pair to out. Pairs with too few complete observations still get a plot
// of whatever points exist.
func WriteCorrelations(outDir string, rows []model.Row, styles Styles, opts PlotOptions, out io.Writer) ([]CorrelationResult, error) {
	if opts.WidthIn <= 0 {
		opts.WidthIn = 7
	}
	if opts.HeightIn <= 0 {
		opts.HeightIn = 5
	}
	if opts.Level <= 0 || opts.Level >= 1 {
		opts.Level = 0.95
	}

	results := make([]CorrelationResult, 0, len(Pairs))
	for _, pair := range Pairs {
		res := CorrelationResult{File: pair.File}

		corr, err := stats.Correlate(rows, pair.X, pair.Y)
		res.Correlation = corr
		res.Valid = err == nil
		if err != nil {
			zap.L().Warn("report: correlation undefined",
				zap.String("x", string(pair.X)),
				zap.String("y", string(pair.Y)),
				zap.Error(err),
			)
		}

		xs, ys := stats.CompletePairs(stats.Column(rows, pair.X), stats.Column(rows, pair.Y))
		if fit, err := stats.FitOLS(xs, ys); err == nil {
			res.Fit = &fit
		}

		p, err := scatterPlot(xs, ys, res, styles[pair.X].Label, styles[pair.Y].Label, opts.Level)
		if err != nil {
			return nil, eris.Wrapf(err, "report: plot %s", pair.File)
		}
		path := filepath.Join(outDir, pair.File)
		if err := p.Save(vg.Length(opts.WidthIn)*vg.Inch, vg.Length(opts.HeightIn)*vg.Inch, path); err != nil {
			return nil, eris.Wrapf(err, "report: save %s", path)
		}

		if _, err := fmt.Fprintln(out, res.Line()); err != nil {
			return nil, eris.Wrap(err, "report: print correlation")
		}
		results = append(results, res)
	}
	return results, nil
}

func scatterPlot(xs, ys []float64, res CorrelationResult, xLabel, yLabel string, level float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s vs %s", yLabel, xLabel)
	if res.Valid {
		p.Title.Text += fmt.Sprintf(" (r = %.3f, n = %d)", res.R, res.N)
	}
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X, pts[i].Y = xs[i], ys[i]
	}

	if res.Fit != nil && len(xs) > 0 {
		xmin, xmax := xs[0], xs[0]
		for _, x := range xs {
			xmin, xmax = min(xmin, x), max(xmax, x)
		}
		band := stats.ConfidenceBand(*res.Fit, xmin, xmax, 50, level)

		outline := make(plotter.XYs, 0, 2*len(band))
		trend := make(plotter.XYs, 0, len(band))
		for _, b := range band {
			outline = append(outline, plotter.XY{X: b.X, Y: b.Hi})
			trend = append(trend, plotter.XY{X: b.X, Y: b.Y})
		}
		for i := len(band) - 1; i >= 0; i-- {
			outline = append(outline, plotter.XY{X: band[i].X, Y: band[i].Lo})
		}

		poly, err := plotter.NewPolygon(outline)
		if err != nil {
			return nil, eris.Wrap(err, "report: confidence band")
		}
		poly.Color = color.RGBA{R: 31, G: 119, B: 180, A: 60}
		poly.LineStyle.Width = 0
		p.Add(poly)
		p.Legend.Add(fmt.Sprintf("%.0f%% CI", level*100), poly)

		line, err := plotter.NewLine(trend)
		if err != nil {
			return nil, eris.Wrap(err, "report: trend line")
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		p.Add(line)
		p.Legend.Add("OLS fit", line)
	}

	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, eris.Wrap(err, "report: scatter")
		}
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Color = color.RGBA{R: 60, G: 60, B: 60, A: 160}
		p.Add(sc)
	}
	p.Legend.Top = true

	return p, nil
}
