package geo

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// ShapeToMultiPolygon converts a shapefile polygon into a go-geom
// multipolygon in the shapefile's own CRS. Shapefile outer rings are
// clockwise and holes counter-clockwise; each hole is attached to the
// outer ring that precedes it. Returns nil for unsupported or empty shapes.
func ShapeToMultiPolygon(shape shp.Shape) (*geom.MultiPolygon, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil, nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	flush := func() error {
		if current == nil {
			return nil
		}
		if err := mp.Push(current); err != nil {
			return eris.Wrap(err, "geo: push polygon")
		}
		current = nil
		return nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("geo: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		hole := xy.IsRingCounterClockwise(geom.XY, flat)
		if hole && current != nil {
			if err := current.Push(ring); err != nil {
				zap.L().Debug("geo: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("geo: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			current = nil
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if mp.NumPolygons() == 0 {
		return nil, nil
	}
	return mp, nil
}

// ToMultiPolygon normalises a decoded geometry into a multipolygon.
func ToMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch v := g.(type) {
	case *geom.MultiPolygon:
		return v, nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(v.Layout()).SetSRID(v.SRID())
		if err := mp.Push(v); err != nil {
			return nil, eris.Wrap(err, "geo: wrap polygon")
		}
		return mp, nil
	case nil:
		return nil, eris.New("geo: missing geometry")
	default:
		return nil, eris.Errorf("geo: unsupported geometry %T", g)
	}
}
