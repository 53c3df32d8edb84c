package model

import "github.com/twpayne/go-geom"

// SRIDWGS84 is the geographic CRS every dataset is joined in.
const SRIDWGS84 = 4326

// Stop is a single transit boarding location from a GTFS stops table.
type Stop struct {
	ID   string  `json:"stop_id"`
	Code string  `json:"stop_code,omitempty"`
	Name string  `json:"stop_name"`
	Lat  float64 `json:"stop_lat"`
	Lon  float64 `json:"stop_lon"`
}

// Point returns the stop as an EPSG:4326 point in lon/lat order.
func (s Stop) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{s.Lon, s.Lat}).SetSRID(SRIDWGS84)
}

// Coord returns the stop as a lon/lat coordinate.
func (s Stop) Coord() geom.Coord {
	return geom.Coord{s.Lon, s.Lat}
}
