package spatial

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/db"
	"github.com/sells-group/stopcensus/internal/model"
)

const schema = "stopcensus"

var schemaDDL = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE SCHEMA IF NOT EXISTS stopcensus`,
	`CREATE TABLE IF NOT EXISTS stopcensus.areas (
		run_id  TEXT NOT NULL,
		geo_uid TEXT NOT NULL,
		geom    geometry(MultiPolygon, 4326) NOT NULL,
		PRIMARY KEY (run_id, geo_uid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stopcensus_areas_geom ON stopcensus.areas USING GIST (geom)`,
	`CREATE TABLE IF NOT EXISTS stopcensus.stops (
		run_id  TEXT NOT NULL,
		stop_id TEXT NOT NULL,
		geom    geometry(Point, 4326) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stopcensus_stops_geom ON stopcensus.stops USING GIST (geom)`,
}

const countSQL = `
	SELECT a.geo_uid, COUNT(s.stop_id)
	FROM stopcensus.areas a
	LEFT JOIN stopcensus.stops s
	  ON s.run_id = a.run_id AND ST_Covers(a.geom, s.geom)
	WHERE a.run_id = $1
	GROUP BY a.geo_uid`

const unmatchedSQL = `
	SELECT COUNT(*)
	FROM stopcensus.stops s
	WHERE s.run_id = $1
	  AND NOT EXISTS (
		SELECT 1 FROM stopcensus.areas a
		WHERE a.run_id = s.run_id AND ST_Covers(a.geom, s.geom)
	  )`

// PostGISJoiner counts stops with ST_Covers in PostGIS. Rows are staged in
// a transaction that is rolled back, so nothing persists between runs.
type PostGISJoiner struct {
	pool db.Pool
}

// NewPostGISJoiner creates a joiner over pool.
func NewPostGISJoiner(pool db.Pool) *PostGISJoiner {
	return &PostGISJoiner{pool: pool}
}

// EnsureSchema creates the staging tables.
func (j *PostGISJoiner) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := j.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "spatial: ensure schema")
		}
	}
	return nil
}

// CountStops stages areas and stops with COPY and counts them in one query.
func (j *PostGISJoiner) CountStops(ctx context.Context, areas []model.Area, stops []model.Stop) (*Result, error) {
	if err := j.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := zap.L().With(zap.String("component", "spatial"), zap.String("run_id", runID))

	areaRows, err := areaRows(runID, areas)
	if err != nil {
		return nil, err
	}
	stopRows, err := stopRows(runID, stops)
	if err != nil {
		return nil, err
	}

	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := db.CopyFrom(ctx, tx, schema, "areas", []string{"run_id", "geo_uid", "geom"}, areaRows); err != nil {
		return nil, eris.Wrap(err, "spatial: stage areas")
	}
	if _, err := db.CopyFrom(ctx, tx, schema, "stops", []string{"run_id", "stop_id", "geom"}, stopRows); err != nil {
		return nil, eris.Wrap(err, "spatial: stage stops")
	}

	res := newResult(areas)
	rows, err := tx.Query(ctx, countSQL, runID)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: count query")
	}
	for rows.Next() {
		var uid string
		var n int64
		if err := rows.Scan(&uid, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "spatial: scan count")
		}
		res.Counts[uid] = int(n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "spatial: count rows")
	}

	var unmatched int64
	if err := tx.QueryRow(ctx, unmatchedSQL, runID).Scan(&unmatched); err != nil {
		return nil, eris.Wrap(err, "spatial: unmatched query")
	}
	res.Unmatched = int(unmatched)

	if err := tx.Rollback(ctx); err != nil && !eris.Is(err, pgx.ErrTxClosed) {
		log.Warn("spatial: rollback staging rows", zap.Error(err))
	}

	log.Info("spatial: joined stops to areas",
		zap.String("backend", "postgis"),
		zap.Int("areas", len(areas)),
		zap.Int("stops", len(stops)),
		zap.Int("unmatched", res.Unmatched),
	)
	return res, nil
}

func areaRows(runID string, areas []model.Area) ([][]any, error) {
	rows := make([][]any, 0, len(areas))
	for _, a := range areas {
		if a.Geometry == nil {
			continue
		}
		g := a.Geometry
		if g.SRID() != model.SRIDWGS84 {
			g = g.Clone().SetSRID(model.SRIDWGS84)
		}
		b, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: encode area %s", a.GeoUID)
		}
		rows = append(rows, []any{runID, a.GeoUID, b})
	}
	return rows, nil
}

func stopRows(runID string, stops []model.Stop) ([][]any, error) {
	rows := make([][]any, 0, len(stops))
	for _, s := range stops {
		b, err := ewkb.Marshal(s.Point(), ewkb.NDR)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: encode stop %s", s.ID)
		}
		rows = append(rows, []any{runID, s.ID, b})
	}
	return rows, nil
}
