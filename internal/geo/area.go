package geo

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
)

// EarthRadiusKm is the IUGG mean Earth radius.
const EarthRadiusKm = 6371.0088

// AreaSqKm returns the geodesic area of an EPSG:4326 multipolygon in square
// kilometres: exterior rings minus holes, measured on the sphere.
func AreaSqKm(mp *geom.MultiPolygon) float64 {
	if mp == nil {
		return 0
	}
	var steradians float64
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			a := ringArea(poly.LinearRing(j))
			if j == 0 {
				steradians += a
			} else {
				steradians -= a
			}
		}
	}
	return math.Max(steradians, 0) * EarthRadiusKm * EarthRadiusKm
}

// ringArea returns the spherical area enclosed by a ring in steradians,
// independent of vertex orientation.
func ringArea(ring *geom.LinearRing) float64 {
	pts := ringPoints(ring)
	if len(pts) < 3 {
		return 0
	}
	a := s2.LoopFromPoints(pts).Area()
	// A clockwise loop encloses the complement of the ring.
	if a > 2*math.Pi {
		a = 4*math.Pi - a
	}
	return a
}

// ringPoints converts a ring into s2 points, dropping the closing vertex
// and consecutive duplicates, which s2 loops do not allow.
func ringPoints(ring *geom.LinearRing) []s2.Point {
	coords := ring.Coords()
	if n := len(coords); n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
		coords = coords[:n-1]
	}
	pts := make([]s2.Point, 0, len(coords))
	var prev geom.Coord
	for i, c := range coords {
		if i > 0 && c.Equal(geom.XY, prev) {
			continue
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(c.Y(), c.X())))
		prev = c
	}
	return pts
}
