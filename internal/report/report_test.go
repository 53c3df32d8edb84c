package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
)

func square(uid string, x, y float64) model.Area {
	flat := []float64{x, y, x + 0.01, y, x + 0.01, y + 0.01, x, y + 0.01, x, y}
	return model.Area{
		GeoUID:   uid,
		Name:     "Ottawa",
		AreaSqKm: 0.87,
		Geometry: geom.NewMultiPolygonFlat(geom.XY, flat, [][]int{{len(flat)}}).SetSRID(4326),
	}
}

// fixture returns five areas whose metrics rise together, plus one area
// with suppressed income and no population.
func fixture() ([]model.Area, []model.Row) {
	var areas []model.Area
	var rows []model.Row
	for i := range 5 {
		a := square("3506100"+string(rune('0'+i)), -75.75+float64(i)*0.01, 45.40)
		areas = append(areas, a)
		rows = append(rows, model.Row{
			GeoUID:        a.GeoUID,
			Name:          a.Name,
			AreaSqKm:      1,
			Population:    100,
			StopCount:     i + 1,
			StopDensity:   model.Some(float64(i + 1)),
			VehicleRatio:  model.Some(0.1 * float64(i+1)),
			AverageIncome: model.Some(40000 + 1000*float64(i)),
		})
	}
	empty := square("35061099", -75.80, 45.40)
	areas = append(areas, empty)
	rows = append(rows, model.Row{GeoUID: empty.GeoUID, AreaSqKm: 1})
	return areas, rows
}

func TestLoadStyles(t *testing.T) {
	styles, err := LoadStyles("")
	require.NoError(t, err)
	assert.Len(t, styles, 4)

	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
layers:
  stop_count:
    label: Stops
    ramp: ["#000000", "#ffffff"]
  average_income:
    opacity: 0.5
`), 0o644))

	styles, err = LoadStyles(path)
	require.NoError(t, err)
	assert.Equal(t, "Stops", styles[model.MetricStopCount].Label)
	assert.Equal(t, []string{"#000000", "#ffffff"}, styles[model.MetricStopCount].Ramp)
	assert.InDelta(t, 0.5, styles[model.MetricAverageIncome].Opacity, 1e-9)
	assert.Equal(t, "Average income ($)", styles[model.MetricAverageIncome].Label)
}

func TestLoadStyles_Errors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("layers:\n  ridership: {label: x}\n"), 0o644))
	_, err := LoadStyles(unknown)
	assert.ErrorContains(t, err, "unknown layer")

	badColour := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badColour, []byte("layers:\n  stop_count: {ramp: [\"red\"]}\n"), 0o644))
	_, err = LoadStyles(badColour)
	assert.ErrorContains(t, err, "invalid colour")

	_, err = LoadStyles(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	sc, err := NewScale(metrics.Summary{Min: 0, Max: 10}, []string{"#000000", "#ffffff"})
	require.NoError(t, err)

	assert.Equal(t, "#000000", sc.Color(model.Some(0)))
	assert.Equal(t, "#ffffff", sc.Color(model.Some(10)))
	assert.Equal(t, "#808080", sc.Color(model.Some(5)))
	assert.Equal(t, NullColor, sc.Color(model.Null()))
	assert.Equal(t, "#ffffff", sc.Color(model.Some(99)), "clamped to ramp end")

	flat, err := NewScale(metrics.Summary{Min: 3, Max: 3}, []string{"#102030", "#ffffff"})
	require.NoError(t, err)
	assert.Equal(t, "#102030", flat.Color(model.Some(3)))

	_, err = NewScale(metrics.Summary{}, nil)
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "12,345", formatInt(12345))
	assert.Equal(t, "n/a", formatValue(model.Null(), 2))
	assert.Equal(t, "0.20", formatValue(model.Some(0.2), 2))
}

func TestPopupHTML_AllMetrics(t *testing.T) {
	r := model.Row{
		GeoUID:        "35061234",
		Name:          "Ottawa <Centre>",
		AreaSqKm:      2,
		StopCount:     1,
		StopDensity:   model.Some(0.5),
		VehicleRatio:  model.Some(0.2),
		AverageIncome: model.Null(),
	}
	html := popupHTML(r, DefaultStyles())

	assert.Contains(t, html, "Ottawa &lt;Centre&gt;")
	assert.Contains(t, html, "Stop count: 1")
	assert.Contains(t, html, "Vehicle commuter ratio: 0.200")
	assert.Contains(t, html, "Average income ($): n/a")
	assert.Contains(t, html, "Stop density (per km²): 0.50")
	assert.Contains(t, html, "Area: 2.000 km²")
}

func TestWriteLayerMap(t *testing.T) {
	areas, rows := fixture()
	path := filepath.Join(t.TempDir(), LayerMapFile)

	require.NoError(t, WriteLayerMap(path, areas, rows, DefaultStyles()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	for _, m := range model.Metrics {
		assert.Contains(t, html, string(m))
	}
	assert.Contains(t, html, "L.control.layers(base, null")
	assert.Contains(t, html, "35061099")
	assert.Contains(t, html, NullColor)
	assert.Equal(t, len(areas), strings.Count(html, "Vehicle commuter ratio: "))
}

func TestWriteStopMap(t *testing.T) {
	areas, _ := fixture()
	stops := []model.Stop{{ID: "AA010", Code: "8767", Name: "SUSSEX / ST. PATRICK", Lat: 45.4312, Lon: -75.6951}}
	path := filepath.Join(t.TempDir(), StopMapFile)

	require.NoError(t, WriteStopMap(path, areas, stops))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUSSEX")
	assert.Contains(t, string(data), "(8767)")
	assert.Contains(t, string(data), "circleMarker")
	assert.Contains(t, string(data), "MultiPolygon")
}

func TestWriteCorrelations(t *testing.T) {
	_, rows := fixture()
	dir := t.TempDir()
	var out bytes.Buffer

	results, err := WriteCorrelations(dir, rows, DefaultStyles(), PlotOptions{WidthIn: 4, HeightIn: 3}, &out)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.True(t, r.Valid)
		assert.Equal(t, 5, r.N, "the all-null area is dropped pairwise")
		assert.InDelta(t, 1.0, r.R, 1e-9)
		require.NotNil(t, r.Fit)

		info, err := os.Stat(filepath.Join(dir, r.File))
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "pearson stop_density vs vehicle_ratio: r=1.0000 n=5", lines[0])
	assert.Equal(t, "pearson stop_count vs average_income: r=1.0000 n=5", lines[1])
	assert.Equal(t, "pearson stop_density vs average_income: r=1.0000 n=5", lines[2])
}

func TestWriteCorrelations_TooFewPairs(t *testing.T) {
	rows := []model.Row{{GeoUID: "a", StopCount: 1, StopDensity: model.Some(1)}}
	var out bytes.Buffer

	results, err := WriteCorrelations(t.TempDir(), rows, DefaultStyles(), PlotOptions{}, &out)
	require.NoError(t, err)
	assert.False(t, results[0].Valid)
	assert.Contains(t, out.String(), "pearson stop_density vs vehicle_ratio: r=n/a n=0")
}

func TestWriteCorrelations_TwoPairsUndefined(t *testing.T) {
	rows := []model.Row{
		{GeoUID: "a", StopCount: 1, StopDensity: model.Some(1), AverageIncome: model.Some(50000)},
		{GeoUID: "b", StopCount: 3, StopDensity: model.Some(3), AverageIncome: model.Some(60000)},
	}
	var out bytes.Buffer

	results, err := WriteCorrelations(t.TempDir(), rows, DefaultStyles(), PlotOptions{}, &out)
	require.NoError(t, err)
	assert.False(t, results[1].Valid)
	assert.Contains(t, out.String(), "pearson stop_count vs average_income: r=n/a n=2")
}

func TestWriteWorkbook(t *testing.T) {
	_, rows := fixture()
	path := filepath.Join(t.TempDir(), WorkbookFile)
	corrs := []CorrelationResult{{File: "corr_density_vehicle.png", Valid: true}}
	corrs[0].X, corrs[0].Y, corrs[0].R, corrs[0].N = model.MetricStopDensity, model.MetricVehicleRatio, 0.42, 5

	require.NoError(t, WriteWorkbook(path, rows, corrs))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, len(rows)+1)
	assert.Equal(t, "GeoUID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "35061000", sheet.Rows[1].Cells[0].String())

	last := sheet.Rows[len(rows)].Cells
	if len(last) > 7 {
		assert.Equal(t, "", last[7].Value, "missing income stays blank")
	}

	corr := f.Sheets[1]
	assert.Equal(t, "stop_density", corr.Rows[1].Cells[0].String())
	assert.Equal(t, "corr_density_vehicle.png", corr.Rows[1].Cells[6].String())
}

func TestWriteIndex(t *testing.T) {
	_, rows := fixture()
	path := filepath.Join(t.TempDir(), IndexFile)
	corrs := []CorrelationResult{{File: "corr_count_income.png", Valid: true}}
	corrs[0].X, corrs[0].Y, corrs[0].R, corrs[0].N = model.MetricStopCount, model.MetricAverageIncome, 0.1234, 5

	err := WriteIndex(path, Summary{
		RunID:        "0b7e4b1c-run",
		GeneratedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Dataset:      "CA16",
		Regions:      "CMA 35505",
		Areas:        1234,
		Stops:        5678,
		Unmatched:    12,
		Rows:         rows,
		Correlations: corrs,
	}, DefaultStyles())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "0b7e4b1c-run")
	assert.Contains(t, html, "1,234 dissemination areas")
	assert.Contains(t, html, "5,678 stops (12 outside every area)")
	assert.Contains(t, html, "0.1234")
	assert.Contains(t, html, `src="corr_count_income.png"`)
	assert.Contains(t, html, "layers_map.html")
}
