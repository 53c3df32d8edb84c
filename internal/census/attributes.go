package census

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/fetcher"
	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
)

// attributes is one attribute table row.
type attributes struct {
	GeoUID           string
	Name             string
	Population       model.Nullable
	Households       model.Nullable
	Dwellings        model.Nullable
	AreaSqKm         model.Nullable
	AverageIncome    model.Nullable
	VehicleCommuters model.Nullable
}

// vectorColumn finds the column for a vector. CensusMapper headers are either
// the bare vector id or "<id>: <label>".
func vectorColumn(h fetcher.Header, vector string) (int, bool) {
	v := strings.ToLower(vector)
	best := -1
	for name, i := range h {
		if name == v || strings.HasPrefix(name, v+":") || strings.HasPrefix(name, v+" ") {
			if best < 0 || i < best {
				best = i
			}
		}
	}
	return best, best >= 0
}

// firstColumn returns the value of the first present alias.
func firstColumn(h fetcher.Header, row []string, aliases ...string) (string, bool) {
	for _, a := range aliases {
		if h.Has(a) {
			return h.Get(row, a), true
		}
	}
	return "", false
}

// parseAttributes maps an attribute table onto rows keyed by GeoUID.
// A missing vector column or an empty table is ErrDataUnavailable.
func parseAttributes(h fetcher.Header, rows [][]string, req Request) (map[string]attributes, error) {
	if !h.Has("geouid") {
		return nil, eris.Wrap(ErrDataUnavailable, "attribute table has no GeoUID column")
	}

	incomeIdx, ok := vectorColumn(h, req.IncomeVector)
	if !ok {
		return nil, eris.Wrapf(ErrDataUnavailable, "vector %s missing from attribute table", req.IncomeVector)
	}
	vehicleIdx, ok := vectorColumn(h, req.VehicleVector)
	if !ok {
		return nil, eris.Wrapf(ErrDataUnavailable, "vector %s missing from attribute table", req.VehicleVector)
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	out := make(map[string]attributes, len(rows))
	var malformed int
	for _, row := range rows {
		uid := h.Get(row, "geouid")
		if uid == "" {
			malformed++
			continue
		}
		a := attributes{
			GeoUID:           uid,
			AverageIncome:    metrics.ParseIncome(cell(row, incomeIdx)),
			VehicleCommuters: metrics.ParseCount(cell(row, vehicleIdx)),
		}
		a.Name, _ = firstColumn(h, row, "region name", "name")
		if v, ok := firstColumn(h, row, "population", "pop"); ok {
			a.Population = metrics.ParseCount(v)
		}
		if v, ok := firstColumn(h, row, "households", "hh"); ok {
			a.Households = metrics.ParseCount(v)
		}
		if v, ok := firstColumn(h, row, "dwellings", "dw"); ok {
			a.Dwellings = metrics.ParseCount(v)
		}
		if v, ok := firstColumn(h, row, "area (sq km)", "area_sq_km", "landarea"); ok {
			a.AreaSqKm = metrics.ParseCount(v)
		}
		out[uid] = a
	}

	if malformed > 0 {
		zap.L().Warn("census: attribute rows without GeoUID", zap.Int("count", malformed))
	}
	if len(out) == 0 {
		return nil, eris.Wrap(ErrDataUnavailable, "attribute table is empty")
	}
	return out, nil
}

// toInt truncates a nullable count, treating null as zero.
func toInt(n model.Nullable) int {
	return int(n.Or(0))
}
