package census

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/fetcher"
	"github.com/sells-group/stopcensus/internal/geo"
	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
)

// regionFields maps a CensusMapper region level to the boundary file
// attributes that may carry it. CensusMapper CMA ids are province-prefixed
// ("35505"), held in CMAPUID; older files only carry the 3-digit CMAUID.
var regionFields = map[string][]string{
	"PR":  {"pruid"},
	"CD":  {"cduid"},
	"CMA": {"cmapuid", "cmauid"},
	"CSD": {"csduid"},
	"CT":  {"ctuid"},
}

// regionFilter keeps a boundary when any of its fields holds a wanted id.
type regionFilter struct {
	fields []int
	ids    map[string]bool
}

// ShapefileSource reads DAs from a Statistics Canada boundary file (or a
// zip holding one) and an attribute CSV keyed by GeoUID.
type ShapefileSource struct {
	shapefile  string
	attributes string
	crs        string
	encoding   string
	fetcher    fetcher.Fetcher
}

// NewShapefileSource creates a local source. crs names the boundary file's
// coordinate system (EPSG:3347 for StatCan cartographic files).
func NewShapefileSource(shapefile, attributes, crs string) *ShapefileSource {
	return &ShapefileSource{shapefile: shapefile, attributes: attributes, crs: crs}
}

// WithEncoding sets the attribute CSV's character set. StatCan downloads
// are often windows-1252.
func (s *ShapefileSource) WithEncoding(charset string) *ShapefileSource {
	s.encoding = charset
	return s
}

// WithFetcher lets the boundary and attribute paths be http(s) URLs. A
// remote boundary file must be a zip holding the .shp and its sidecars.
func (s *ShapefileSource) WithFetcher(f fetcher.Fetcher) *ShapefileSource {
	s.fetcher = f
	return s
}

// Fetch reads, filters and reprojects the boundary file and joins the
// attribute table onto it.
func (s *ShapefileSource) Fetch(ctx context.Context, req Request) ([]model.Area, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "stopcensus-census-*")
	if err != nil {
		return nil, eris.Wrap(err, "census: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	attrPath, err := fetcher.Localize(ctx, s.fetcher, s.attributes, tmp)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "download attributes: %v", err)
	}
	boundaryPath, err := fetcher.Localize(ctx, s.fetcher, s.shapefile, tmp)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "download boundary file: %v", err)
	}

	attrs, err := s.readAttributes(ctx, attrPath, req)
	if err != nil {
		return nil, err
	}

	shpPath, cleanup, err := resolveShapefile(boundaryPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rp, err := geo.NewReprojector(s.crs)
	if err != nil {
		return nil, err
	}

	bounds, err := readBoundaries(ctx, shpPath, req, rp)
	if err != nil {
		return nil, err
	}

	areas, err := assemble(bounds, attrs)
	if err != nil {
		return nil, err
	}
	zap.L().Info("census: loaded dissemination areas",
		zap.String("source", "shapefile"),
		zap.String("path", s.shapefile),
		zap.Int("areas", len(areas)),
	)
	return areas, nil
}

func (s *ShapefileSource) readAttributes(ctx context.Context, path string, req Request) (map[string]attributes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "open attributes %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	r, err := fetcher.DecodeCharset(f, s.encoding)
	if err != nil {
		return nil, err
	}
	hdr, rows, err := fetcher.ReadAll(ctx, r)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "read attributes: %v", err)
	}
	return parseAttributes(hdr, rows, req)
}

// resolveShapefile returns a .shp path, extracting it first when given a zip.
func resolveShapefile(path string) (string, func(), error) {
	noop := func() {}
	if _, err := os.Stat(path); err != nil {
		return "", noop, eris.Wrapf(ErrDataUnavailable, "open boundary file %s: %v", path, err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, noop, nil
	}

	tmp, err := os.MkdirTemp("", "stopcensus-shp-*")
	if err != nil {
		return "", noop, eris.Wrap(err, "census: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(tmp) }

	files, err := fetcher.ExtractZIP(path, tmp)
	if err != nil {
		cleanup()
		return "", noop, eris.Wrap(err, "census: extract boundary zip")
	}
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".shp") {
			return f, cleanup, nil
		}
	}
	cleanup()
	return "", noop, eris.Wrapf(ErrDataUnavailable, "no .shp in %s", path)
}

func (f regionFilter) match(attr func(int) string) bool {
	for _, idx := range f.fields {
		if f.ids[attr(idx)] {
			return true
		}
	}
	return false
}

func readBoundaries(ctx context.Context, shpPath string, req Request, rp *geo.Reprojector) ([]boundary, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "open shapefile %s: %v", shpPath, err)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	uidIdx, ok := fieldIdx["dauid"]
	if !ok {
		return nil, eris.Wrap(ErrDataUnavailable, "shapefile has no DAUID field")
	}

	attr := func(idx int) string {
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var filters []regionFilter
	for level, ids := range req.Regions {
		f := regionFilter{ids: make(map[string]bool, len(ids))}
		for _, name := range regionFields[strings.ToUpper(level)] {
			if idx, ok := fieldIdx[name]; ok {
				f.fields = append(f.fields, idx)
			}
		}
		if len(f.fields) == 0 {
			zap.L().Warn("census: region level not filterable in shapefile", zap.String("level", level))
			continue
		}
		for _, id := range ids {
			f.ids[id] = true
		}
		filters = append(filters, f)
	}

	var bounds []boundary
	var skipped int
	for reader.Next() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "census: read shapefile")
		}
		_, shape := reader.Shape()

		keep := true
		for _, f := range filters {
			if !f.match(attr) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}

		mp, err := geo.ShapeToMultiPolygon(shape)
		if err != nil || mp == nil {
			skipped++
			continue
		}
		mp, err = rp.MultiPolygon(mp)
		if err != nil {
			skipped++
			continue
		}

		b := boundary{GeoUID: attr(uidIdx), Geometry: mp}
		b.Props.GeoUID = b.GeoUID
		if idx, ok := fieldIdx["landarea"]; ok {
			b.Props.AreaSqKm = metrics.ParseCount(attr(idx))
		}
		bounds = append(bounds, b)
	}

	if skipped > 0 {
		zap.L().Debug("census: skipped shapefile records", zap.Int("skipped", skipped))
	}
	if len(bounds) == 0 {
		return nil, eris.Wrap(ErrDataUnavailable, "no boundaries match the requested regions")
	}
	return bounds, nil
}
