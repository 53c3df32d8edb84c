// Package geo converts census and transit geometries into the single
// geographic CRS (EPSG:4326) the spatial join runs in.
package geo

import (
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/stopcensus/internal/model"
)

// WGS84 is the proj4 definition of EPSG:4326.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// knownCRS maps the EPSG codes Canadian census and transit data ship in to
// proj4 definitions.
var knownCRS = map[string]string{
	"EPSG:4326": WGS84,
	// NAD83 geographic; StatCan cartographic boundary files.
	"EPSG:4269": "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	// Statistics Canada Lambert (NAD83); digital boundary files.
	"EPSG:3347": "+proj=lcc +lat_1=49 +lat_2=77 +lat_0=63.390675 +lon_0=-91.86666666666666 +x_0=6200000 +y_0=3000000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	// NAD83 / MTM zone 9; City of Ottawa open data.
	"EPSG:32189": "+proj=tmerc +lat_0=0 +lon_0=-76.5 +k=0.9999 +x_0=304800 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
}

// ResolveCRS returns the proj4 definition for an EPSG code, or crs itself
// when it already looks like a proj4 string.
func ResolveCRS(crs string) (string, error) {
	crs = strings.TrimSpace(crs)
	if strings.HasPrefix(crs, "+proj=") {
		return crs, nil
	}
	def, ok := knownCRS[strings.ToUpper(crs)]
	if !ok {
		return "", eris.Errorf("geo: unknown CRS %q", crs)
	}
	return def, nil
}

// Reprojector transforms coordinates from a source CRS into EPSG:4326.
type Reprojector struct {
	source    string
	identity  bool
	transform proj.Transformer
}

// NewReprojector builds a transform from crs (EPSG code or proj4 string)
// into EPSG:4326. An EPSG:4326 source yields an identity transform.
func NewReprojector(crs string) (*Reprojector, error) {
	def, err := ResolveCRS(crs)
	if err != nil {
		return nil, err
	}
	if def == WGS84 {
		return &Reprojector{source: crs, identity: true}, nil
	}

	src, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: parse source CRS %s", crs)
	}
	dst, err := proj.Parse(WGS84)
	if err != nil {
		return nil, eris.Wrap(err, "geo: parse WGS84")
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: build transform from %s", crs)
	}
	return &Reprojector{source: crs, transform: t}, nil
}

// Identity reports whether the source CRS is already EPSG:4326.
func (r *Reprojector) Identity() bool { return r.identity }

// Point transforms a single source coordinate into lon/lat degrees.
func (r *Reprojector) Point(x, y float64) (lon, lat float64, err error) {
	if r.identity {
		return x, y, nil
	}
	lon, lat, err = r.transform(x, y)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geo: reproject (%f, %f) from %s", x, y, r.source)
	}
	return lon, lat, nil
}

// MultiPolygon returns a copy of mp with every vertex in EPSG:4326.
func (r *Reprojector) MultiPolygon(mp *geom.MultiPolygon) (*geom.MultiPolygon, error) {
	if mp == nil {
		return nil, nil
	}
	stride := mp.Stride()
	src := mp.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		lon, lat, err := r.Point(src[i], src[i+1])
		if err != nil {
			return nil, err
		}
		flat = append(flat, lon, lat)
	}

	// Layout is forced to XY, so ring ends shrink with the stride.
	endss := make([][]int, 0, len(mp.Endss()))
	for _, ends := range mp.Endss() {
		scaled := make([]int, len(ends))
		for i, e := range ends {
			scaled[i] = e / stride * 2
		}
		endss = append(endss, scaled)
	}

	return geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(model.SRIDWGS84), nil
}
