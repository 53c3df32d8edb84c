package spatial

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/model"
)

// MemoryJoiner runs point-in-polygon tests in process.
type MemoryJoiner struct{}

// NewMemoryJoiner creates an in-process joiner.
func NewMemoryJoiner() *MemoryJoiner { return &MemoryJoiner{} }

type indexedArea struct {
	uid    string
	bounds *geom.Bounds
	mp     *geom.MultiPolygon
}

// CountStops tests every stop against the areas whose bounding box holds it.
func (j *MemoryJoiner) CountStops(ctx context.Context, areas []model.Area, stops []model.Stop) (*Result, error) {
	res := newResult(areas)

	index := make([]indexedArea, 0, len(areas))
	for _, a := range areas {
		if a.Geometry == nil || a.Geometry.Empty() {
			continue
		}
		index = append(index, indexedArea{uid: a.GeoUID, bounds: a.Geometry.Bounds(), mp: a.Geometry})
	}

	for i, s := range stops {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "spatial: count stops")
		}

		c := s.Coord()
		matched := false
		for _, ia := range index {
			if !inBounds(ia.bounds, c) {
				continue
			}
			if Covers(ia.mp, c) {
				res.Counts[ia.uid]++
				matched = true
			}
		}
		if !matched {
			res.Unmatched++
		}
	}

	zap.L().Info("spatial: joined stops to areas",
		zap.String("backend", "memory"),
		zap.Int("areas", len(areas)),
		zap.Int("stops", len(stops)),
		zap.Int("unmatched", res.Unmatched),
	)
	return res, nil
}

func inBounds(b *geom.Bounds, c geom.Coord) bool {
	return c.X() >= b.Min(0) && c.X() <= b.Max(0) && c.Y() >= b.Min(1) && c.Y() <= b.Max(1)
}

// Covers reports whether c lies in the interior or on the boundary of mp.
func Covers(mp *geom.MultiPolygon, c geom.Coord) bool {
	layout := mp.Layout()
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if p.NumLinearRings() == 0 {
			continue
		}
		if xy.LocatePointInRing(layout, c, p.LinearRing(0).FlatCoords()) == location.Exterior {
			continue
		}
		inHole := false
		for r := 1; r < p.NumLinearRings(); r++ {
			if xy.LocatePointInRing(layout, c, p.LinearRing(r).FlatCoords()) == location.Interior {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
