// Package pipeline sequences loading, joining, deriving and reporting.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/stopcensus/internal/census"
	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
	"github.com/sells-group/stopcensus/internal/report"
	"github.com/sells-group/stopcensus/internal/spatial"
	"github.com/sells-group/stopcensus/internal/transit"
)

// StopLoader reads transit stops.
type StopLoader interface {
	Load(ctx context.Context, path string) (*transit.Result, error)
}

// Options configures one run.
type Options struct {
	StopsPath string
	Request   census.Request
	OutDir    string
	Styles    report.Styles
	Plot      report.PlotOptions
	// Stdout receives the correlation summary lines.
	Stdout io.Writer
}

// Phase records one stage's timing.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Inputs are the loaded datasets, both in EPSG:4326.
type Inputs struct {
	Stops     []model.Stop
	Areas     []model.Area
	Malformed int
}

// Result is everything a run produced.
type Result struct {
	RunID        string
	Inputs       *Inputs
	Join         *spatial.Result
	Rows         []model.Row
	Correlations []report.CorrelationResult
	Files        []string
	Phases       []Phase
}

// Pipeline wires the stage implementations together.
type Pipeline struct {
	stops  StopLoader
	census census.Source
	joiner spatial.Joiner
	opts   Options
	now    func() time.Time
}

// New creates a Pipeline.
func New(stops StopLoader, src census.Source, joiner spatial.Joiner, opts Options) *Pipeline {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Styles == nil {
		opts.Styles = report.DefaultStyles()
	}
	return &Pipeline{stops: stops, census: src, joiner: joiner, opts: opts, now: time.Now}
}

// phase runs fn and appends its timing to res.
func phase(res *Result, log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p := Phase{Name: name, Duration: time.Since(start)}
	if err != nil {
		p.Err = err.Error()
		log.Error("pipeline: phase failed", zap.String("phase", name), zap.Duration("duration", p.Duration), zap.Error(err))
	} else {
		log.Info("pipeline: phase complete", zap.String("phase", name), zap.Duration("duration", p.Duration))
	}
	res.Phases = append(res.Phases, p)
	return err
}

// Load reads stops and census areas concurrently.
func (p *Pipeline) Load(ctx context.Context) (*Inputs, error) {
	in := &Inputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := p.stops.Load(gctx, p.opts.StopsPath)
		if err != nil {
			return eris.Wrap(err, "pipeline: load stops")
		}
		in.Stops = res.Stops
		in.Malformed = res.Malformed
		return nil
	})
	g.Go(func() error {
		areas, err := p.census.Fetch(gctx, p.opts.Request)
		if err != nil {
			return eris.Wrap(err, "pipeline: load census")
		}
		in.Areas = areas
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// Run executes every stage and writes the report.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.New().String()}
	log := zap.L().With(zap.String("run_id", res.RunID))
	log.Info("pipeline: starting run",
		zap.String("stops", p.opts.StopsPath),
		zap.String("dataset", p.opts.Request.Dataset),
		zap.String("out_dir", p.opts.OutDir),
	)

	if err := phase(res, log, "load", func() error {
		in, err := p.Load(ctx)
		res.Inputs = in
		return err
	}); err != nil {
		return res, err
	}

	if err := phase(res, log, "join", func() error {
		j, err := p.joiner.CountStops(ctx, res.Inputs.Areas, res.Inputs.Stops)
		if err != nil {
			return eris.Wrap(err, "pipeline: join")
		}
		res.Join = j
		return nil
	}); err != nil {
		return res, err
	}

	if err := phase(res, log, "derive", func() error {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: derive")
		}
		res.Rows = metrics.Derive(res.Inputs.Areas, res.Join.Counts)
		for m, s := range metrics.SummarizeAll(res.Rows) {
			log.Debug("pipeline: metric summary",
				zap.String("metric", string(m)),
				zap.Int("count", s.Count),
				zap.Int("nulls", s.Nulls),
				zap.Float64("min", s.Min),
				zap.Float64("max", s.Max),
			)
		}
		return nil
	}); err != nil {
		return res, err
	}

	if err := phase(res, log, "report", func() error { return p.writeReport(res) }); err != nil {
		return res, err
	}

	log.Info("pipeline: run complete",
		zap.Int("areas", len(res.Rows)),
		zap.Int("stops", len(res.Inputs.Stops)),
		zap.Int("unmatched", res.Join.Unmatched),
		zap.Int("files", len(res.Files)),
	)
	return res, nil
}

func (p *Pipeline) writeReport(res *Result) error {
	dir := p.opts.OutDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create %s", dir)
	}
	out := func(name string) string {
		path := filepath.Join(dir, name)
		res.Files = append(res.Files, path)
		return path
	}

	if err := report.WriteStopMap(out(report.StopMapFile), res.Inputs.Areas, res.Inputs.Stops); err != nil {
		return err
	}
	if err := report.WriteLayerMap(out(report.LayerMapFile), res.Inputs.Areas, res.Rows, p.opts.Styles); err != nil {
		return err
	}

	corrs, err := report.WriteCorrelations(dir, res.Rows, p.opts.Styles, p.opts.Plot, p.opts.Stdout)
	if err != nil {
		return err
	}
	res.Correlations = corrs
	for _, c := range corrs {
		res.Files = append(res.Files, filepath.Join(dir, c.File))
	}

	if err := report.WriteWorkbook(out(report.WorkbookFile), res.Rows, corrs); err != nil {
		return err
	}

	return report.WriteIndex(out(report.IndexFile), report.Summary{
		RunID:        res.RunID,
		GeneratedAt:  p.now(),
		Dataset:      p.opts.Request.Dataset,
		Regions:      FormatRegions(p.opts.Request.Regions),
		Areas:        len(res.Inputs.Areas),
		Stops:        len(res.Inputs.Stops),
		Unmatched:    res.Join.Unmatched,
		Rows:         res.Rows,
		Correlations: corrs,
	}, p.opts.Styles)
}

// FormatRegions renders a region map as "CMA 35505; CSD 3506008".
func FormatRegions(regions map[string][]string) string {
	levels := make([]string, 0, len(regions))
	for lvl := range regions {
		levels = append(levels, lvl)
	}
	sort.Strings(levels)

	parts := make([]string, 0, len(levels))
	for _, lvl := range levels {
		parts = append(parts, fmt.Sprintf("%s %s", lvl, strings.Join(regions[lvl], ",")))
	}
	return strings.Join(parts, "; ")
}
