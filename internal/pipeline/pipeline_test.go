package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/stopcensus/internal/census"
	"github.com/sells-group/stopcensus/internal/model"
	"github.com/sells-group/stopcensus/internal/report"
	"github.com/sells-group/stopcensus/internal/spatial"
	"github.com/sells-group/stopcensus/internal/transit"
)

type fakeSource struct {
	areas []model.Area
	err   error
	calls atomic.Int32
}

func (f *fakeSource) Fetch(_ context.Context, _ census.Request) ([]model.Area, error) {
	f.calls.Add(1)
	return f.areas, f.err
}

func box(uid string, x0, y0, x1, y1 float64, pop int, income, vehicles float64) model.Area {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}}}).SetSRID(model.SRIDWGS84)
	return model.Area{
		GeoUID:           uid,
		Geometry:         mp,
		Population:       pop,
		AreaSqKm:         1,
		AverageIncome:    model.Some(income),
		VehicleCommuters: model.Some(vehicles),
	}
}

func fixtureAreas() []model.Area {
	return []model.Area{
		box("35060001", -75.80, 45.30, -75.70, 45.40, 400, 50000, 100),
		box("35060002", -75.70, 45.30, -75.60, 45.40, 500, 60000, 200),
		box("35060003", -75.60, 45.30, -75.50, 45.40, 600, 70000, 300),
		box("35060004", -75.50, 45.30, -75.40, 45.40, 0, 80000, 0),
	}
}

const stopsTXT = `stop_id,stop_code,stop_name,stop_lat,stop_lon,location_type
1,1001,A,45.35,-75.75,0
2,1002,B,45.35,-75.65,0
3,1003,C,45.36,-75.65,
4,1004,D,45.35,-75.55,0
5,1005,E,45.36,-75.55,0
6,1006,F,45.37,-75.55,0
7,,Station,45.35,-75.45,1
8,1008,Far,44.00,-70.00,0
`

func writeStops(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stops.txt")
	require.NoError(t, os.WriteFile(path, []byte(stopsTXT), 0o644))
	return path
}

func newPipeline(t *testing.T, src census.Source) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	var stdout bytes.Buffer
	p := New(&transit.Loader{}, src, spatial.NewMemoryJoiner(), Options{
		StopsPath: writeStops(t),
		Request:   census.DefaultRequest(),
		OutDir:    filepath.Join(t.TempDir(), "out"),
		Stdout:    &stdout,
	})
	return p, &stdout
}

func TestRun_WritesReport(t *testing.T) {
	src := &fakeSource{areas: fixtureAreas()}
	p, stdout := newPipeline(t, src)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Len(t, res.Inputs.Stops, 7)
	assert.Equal(t, 1, res.Join.Unmatched)

	require.Len(t, res.Rows, 4)
	counts := map[string]int{}
	for _, r := range res.Rows {
		counts[r.GeoUID] = r.StopCount
	}
	assert.Equal(t, map[string]int{"35060001": 1, "35060002": 2, "35060003": 3, "35060004": 0}, counts)

	var names []string
	for _, ph := range res.Phases {
		names = append(names, ph.Name)
		assert.Empty(t, ph.Err)
	}
	assert.Equal(t, []string{"load", "join", "derive", "report"}, names)

	for _, f := range res.Files {
		info, err := os.Stat(f)
		require.NoError(t, err, f)
		assert.Positive(t, info.Size(), f)
	}
	for _, name := range []string{report.StopMapFile, report.LayerMapFile, report.WorkbookFile, report.IndexFile} {
		assert.FileExists(t, filepath.Join(p.opts.OutDir, name))
	}
	require.Len(t, res.Correlations, len(report.Pairs))
	for _, pair := range report.Pairs {
		assert.FileExists(t, filepath.Join(p.opts.OutDir, pair.File))
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Len(t, lines, len(report.Pairs))
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "pearson "), l)
	}
}

func TestRun_CensusUnavailable(t *testing.T) {
	src := &fakeSource{err: eris.Wrap(census.ErrDataUnavailable, "no areas")}
	p, _ := newPipeline(t, src)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, census.ErrDataUnavailable))
	require.Len(t, res.Phases, 1)
	assert.Equal(t, "load", res.Phases[0].Name)
	assert.NotEmpty(t, res.Phases[0].Err)

	_, statErr := os.Stat(p.opts.OutDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_StopsUnavailable(t *testing.T) {
	src := &fakeSource{areas: fixtureAreas()}
	p, _ := newPipeline(t, src)
	p.opts.StopsPath = filepath.Join(t.TempDir(), "missing.txt")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: load stops")
}

// cancellingJoiner counts stops and then cancels the run, as a SIGINT
// arriving mid-join would.
type cancellingJoiner struct {
	cancel context.CancelFunc
}

func (j *cancellingJoiner) CountStops(ctx context.Context, areas []model.Area, stops []model.Stop) (*spatial.Result, error) {
	res, err := spatial.NewMemoryJoiner().CountStops(ctx, areas, stops)
	j.cancel()
	return res, err
}

func TestRun_DeriveErrorStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, _ := newPipeline(t, &fakeSource{areas: fixtureAreas()})
	p.joiner = &cancellingJoiner{cancel: cancel}

	res, err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
	assert.Contains(t, err.Error(), "pipeline: derive")

	require.Len(t, res.Phases, 3)
	assert.Equal(t, "derive", res.Phases[2].Name)
	assert.NotEmpty(t, res.Phases[2].Err)
	assert.Empty(t, res.Files)

	_, statErr := os.Stat(p.opts.OutDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoad_IncludesMalformedCount(t *testing.T) {
	src := &fakeSource{areas: fixtureAreas()}
	p, _ := newPipeline(t, src)

	path := filepath.Join(t.TempDir(), "stops.txt")
	require.NoError(t, os.WriteFile(path, []byte("stop_id,stop_name,stop_lat,stop_lon\n1,A,45.35,-75.75\n2,B,abc,-75.65\n"), 0o644))
	p.opts.StopsPath = path

	in, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, in.Stops, 1)
	assert.Equal(t, 1, in.Malformed)
	assert.Len(t, in.Areas, 4)
}

func TestFormatRegions(t *testing.T) {
	assert.Equal(t, "", FormatRegions(nil))
	assert.Equal(t, "CMA 35505; CSD 3506008,3506014", FormatRegions(map[string][]string{
		"CSD": {"3506008", "3506014"},
		"CMA": {"35505"},
	}))
}
