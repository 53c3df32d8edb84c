package census

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/geo"
	"github.com/sells-group/stopcensus/internal/model"
)

// boundary is one DA polygon plus whatever attributes travelled with it.
type boundary struct {
	GeoUID   string
	Geometry *geom.MultiPolygon
	Props    attributes
}

// pick prefers the attribute table's value over the boundary's.
func pick(table, shape model.Nullable) model.Nullable {
	if table.Valid {
		return table
	}
	return shape
}

// positive nulls out zero and negative areas.
func positive(n model.Nullable) model.Nullable {
	if n.Valid && n.Value > 0 {
		return n
	}
	return model.Null()
}

// assemble joins boundaries with attribute rows on GeoUID. Boundaries with
// no attribute row keep null income and commuters. Areas are sorted by GeoUID.
func assemble(bounds []boundary, attrs map[string]attributes) ([]model.Area, error) {
	log := zap.L().With(zap.String("component", "census"))

	areas := make([]model.Area, 0, len(bounds))
	seen := make(map[string]bool, len(bounds))
	var unattributed, computedArea int

	for _, b := range bounds {
		if b.Geometry == nil || seen[b.GeoUID] {
			continue
		}
		seen[b.GeoUID] = true

		row, ok := attrs[b.GeoUID]
		if !ok {
			unattributed++
		}

		a := model.Area{
			GeoUID:           b.GeoUID,
			Name:             b.Props.Name,
			Geometry:         b.Geometry,
			Population:       toInt(pick(row.Population, b.Props.Population)),
			Households:       toInt(pick(row.Households, b.Props.Households)),
			Dwellings:        toInt(pick(row.Dwellings, b.Props.Dwellings)),
			AverageIncome:    row.AverageIncome,
			VehicleCommuters: row.VehicleCommuters,
		}
		if row.Name != "" {
			a.Name = row.Name
		}

		area := pick(positive(row.AreaSqKm), positive(b.Props.AreaSqKm))
		if area.Valid && area.Value > 0 {
			a.AreaSqKm = area.Value
		} else {
			a.AreaSqKm = geo.AreaSqKm(b.Geometry)
			computedArea++
		}

		areas = append(areas, a)
	}

	if len(areas) == 0 {
		return nil, eris.Wrap(ErrDataUnavailable, "no boundaries returned")
	}
	if unattributed > 0 {
		log.Warn("census: boundaries without attribute rows", zap.Int("count", unattributed))
	}
	if computedArea > 0 {
		log.Debug("census: computed geodesic area", zap.Int("count", computedArea))
	}

	sort.Slice(areas, func(i, j int) bool { return areas[i].GeoUID < areas[j].GeoUID })
	return areas, nil
}
