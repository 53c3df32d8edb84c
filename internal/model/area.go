package model

import "github.com/twpayne/go-geom"

// Area is a census dissemination area: a polygon plus the attributes the
// report needs. Geometry is always EPSG:4326 once a census source returns it.
type Area struct {
	GeoUID           string             `json:"geo_uid"`
	Name             string             `json:"name,omitempty"`
	Geometry         *geom.MultiPolygon `json:"-"`
	Population       int                `json:"population"`
	Households       int                `json:"households,omitempty"`
	Dwellings        int                `json:"dwellings,omitempty"`
	AreaSqKm         float64            `json:"area_sq_km"`
	AverageIncome    Nullable           `json:"average_income"`
	VehicleCommuters Nullable           `json:"vehicle_commuters"`
}

// Row is the derived per-area record produced by the metric deriver.
type Row struct {
	GeoUID        string   `json:"geo_uid"`
	Name          string   `json:"name,omitempty"`
	AreaSqKm      float64  `json:"area_sq_km"`
	Population    int      `json:"population"`
	StopCount     int      `json:"stop_count"`
	StopDensity   Nullable `json:"stop_density"`
	VehicleRatio  Nullable `json:"vehicle_ratio"`
	AverageIncome Nullable `json:"average_income"`
}

// Metric names one derived column of Row.
type Metric string

// Derived columns, in the order the layer map lists them.
const (
	MetricStopCount     Metric = "stop_count"
	MetricVehicleRatio  Metric = "vehicle_ratio"
	MetricAverageIncome Metric = "average_income"
	MetricStopDensity   Metric = "stop_density"
)

// Metrics lists every derived column.
var Metrics = []Metric{MetricStopCount, MetricVehicleRatio, MetricAverageIncome, MetricStopDensity}

// Value returns the named metric for the row.
func (r Row) Value(m Metric) Nullable {
	switch m {
	case MetricStopCount:
		return Some(float64(r.StopCount))
	case MetricVehicleRatio:
		return r.VehicleRatio
	case MetricAverageIncome:
		return r.AverageIncome
	case MetricStopDensity:
		return r.StopDensity
	default:
		return Null()
	}
}
