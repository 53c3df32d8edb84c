package spatial

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/stopcensus/internal/model"
)

// box returns a single-polygon area spanning [x0,x1] x [y0,y1] with
// optional holes given as further boxes.
func box(uid string, x0, y0, x1, y1 float64, holes ...[4]float64) model.Area {
	ring := func(a, b, c, d float64) []float64 {
		return []float64{a, b, c, b, c, d, a, d, a, b}
	}
	flat := ring(x0, y0, x1, y1)
	ends := []int{len(flat)}
	for _, h := range holes {
		flat = append(flat, ring(h[0], h[1], h[2], h[3])...)
		ends = append(ends, len(flat))
	}
	return model.Area{
		GeoUID:   uid,
		Geometry: geom.NewMultiPolygonFlat(geom.XY, flat, [][]int{ends}).SetSRID(4326),
	}
}

func stop(id string, lat, lon float64) model.Stop {
	return model.Stop{ID: id, Name: id, Lat: lat, Lon: lon}
}

func TestMemoryJoiner_SingleStopInside(t *testing.T) {
	areas := []model.Area{box("A", -75.71, 45.39, -75.69, 45.41)}
	stops := []model.Stop{stop("S1", 45.40, -75.70)}

	res, err := NewMemoryJoiner().CountStops(context.Background(), areas, stops)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1}, res.Counts)
	assert.Equal(t, 0, res.Unmatched)
}

func TestMemoryJoiner_ZeroCountsPresent(t *testing.T) {
	areas := []model.Area{
		box("A", 0, 0, 1, 1),
		box("B", 5, 5, 6, 6),
	}
	stops := []model.Stop{stop("S1", 0.5, 0.5), stop("S2", 0.25, 0.75)}

	res, err := NewMemoryJoiner().CountStops(context.Background(), areas, stops)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 0}, res.Counts)
	assert.Equal(t, 2, res.Total())
}

func TestMemoryJoiner_StopOutsideEveryArea(t *testing.T) {
	areas := []model.Area{box("A", 0, 0, 1, 1)}
	stops := []model.Stop{stop("S1", 10, 10), stop("S2", 0.5, 0.5)}

	res, err := NewMemoryJoiner().CountStops(context.Background(), areas, stops)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts["A"])
	assert.Equal(t, 1, res.Unmatched)
}

func TestMemoryJoiner_SharedEdgeCountsForBoth(t *testing.T) {
	areas := []model.Area{
		box("W", 0, 0, 1, 1),
		box("E", 1, 0, 2, 1),
	}
	stops := []model.Stop{stop("EDGE", 0.5, 1)}

	res, err := NewMemoryJoiner().CountStops(context.Background(), areas, stops)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts["W"])
	assert.Equal(t, 1, res.Counts["E"])
	assert.Equal(t, 0, res.Unmatched)
	assert.Equal(t, 2, res.Total())
}

func TestMemoryJoiner_Holes(t *testing.T) {
	areas := []model.Area{box("A", 0, 0, 4, 4, [4]float64{1, 1, 3, 3})}
	stops := []model.Stop{
		stop("IN_HOLE", 2, 2),
		stop("HOLE_EDGE", 2, 1),
		stop("RING", 0.5, 0.5),
	}

	res, err := NewMemoryJoiner().CountStops(context.Background(), areas, stops)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Counts["A"])
	assert.Equal(t, 1, res.Unmatched)
}

func TestMemoryJoiner_NilGeometry(t *testing.T) {
	areas := []model.Area{{GeoUID: "EMPTY"}}

	res, err := NewMemoryJoiner().CountStops(context.Background(), areas, []model.Stop{stop("S", 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Counts["EMPTY"])
	assert.Equal(t, 1, res.Unmatched)
}

func TestMemoryJoiner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryJoiner().CountStops(ctx, []model.Area{box("A", 0, 0, 1, 1)}, []model.Stop{stop("S", 0.5, 0.5)})
	assert.Error(t, err)
}

func TestCovers_Vertex(t *testing.T) {
	a := box("A", 0, 0, 1, 1)
	assert.True(t, Covers(a.Geometry, geom.Coord{0, 0}))
	assert.True(t, Covers(a.Geometry, geom.Coord{1, 0.5}))
	assert.False(t, Covers(a.Geometry, geom.Coord{1.0001, 0.5}))
}

func expectSchema(mock pgxmock.PgxPoolIface) {
	for range schemaDDL {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
}

func TestPostGISJoiner_CountStops(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	areas := []model.Area{box("A", 0, 0, 1, 1), box("B", 5, 5, 6, 6)}
	stops := []model.Stop{stop("S1", 0.5, 0.5), stop("S2", 20, 20)}

	expectSchema(mock)
	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"stopcensus", "areas"}, []string{"run_id", "geo_uid", "geom"}).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"stopcensus", "stops"}, []string{"run_id", "stop_id", "geom"}).WillReturnResult(2)
	mock.ExpectQuery("ST_Covers").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"geo_uid", "count"}).
			AddRow("A", int64(1)).
			AddRow("B", int64(0)))
	mock.ExpectQuery("NOT EXISTS").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectRollback()

	res, err := NewPostGISJoiner(mock).CountStops(context.Background(), areas, stops)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1, "B": 0}, res.Counts)
	assert.Equal(t, 1, res.Unmatched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISJoiner_SchemaError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE EXTENSION").WillReturnError(fmt.Errorf("permission denied"))

	_, err = NewPostGISJoiner(mock).CountStops(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure schema")
}

func TestPostGISJoiner_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSchema(mock)
	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"stopcensus", "areas"}, []string{"run_id", "geo_uid", "geom"}).
		WillReturnError(fmt.Errorf("geometry type mismatch"))
	mock.ExpectRollback()

	_, err = NewPostGISJoiner(mock).CountStops(context.Background(),
		[]model.Area{box("A", 0, 0, 1, 1)}, []model.Stop{stop("S", 0.5, 0.5)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage areas")
}

func TestStopRows_EWKB(t *testing.T) {
	rows, err := stopRows("run", []model.Stop{stop("S1", 45.4, -75.7)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	b, ok := rows[0][2].([]byte)
	require.True(t, ok)
	// NDR byte order, point type with the SRID flag set.
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x20}, b[1:5])
}
