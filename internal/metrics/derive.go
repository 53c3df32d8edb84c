package metrics

import (
	"math"

	"github.com/sells-group/stopcensus/internal/model"
)

// Ratio divides num by den. A zero, negative-zero or non-finite denominator,
// or a missing numerator, yields null.
func Ratio(num model.Nullable, den float64) model.Nullable {
	if !num.Valid || den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return model.Null()
	}
	return model.Some(num.Value / den)
}

// DeriveRow computes the derived columns for one area. Values are not
// clamped: a vehicle ratio above 1 from inconsistent source data is kept.
func DeriveRow(a model.Area, stopCount int) model.Row {
	density := model.Null()
	if a.AreaSqKm > 0 {
		density = Ratio(model.Some(float64(stopCount)), a.AreaSqKm)
	}
	return model.Row{
		GeoUID:        a.GeoUID,
		Name:          a.Name,
		AreaSqKm:      a.AreaSqKm,
		Population:    a.Population,
		StopCount:     stopCount,
		StopDensity:   density,
		VehicleRatio:  Ratio(a.VehicleCommuters, float64(a.Population)),
		AverageIncome: a.AverageIncome,
	}
}

// Derive computes rows for every area, in input order. Areas missing from
// counts get a stop count of zero.
func Derive(areas []model.Area, counts map[string]int) []model.Row {
	rows := make([]model.Row, 0, len(areas))
	for _, a := range areas {
		rows = append(rows, DeriveRow(a, counts[a.GeoUID]))
	}
	return rows
}
