package census

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/fetcher"
	"github.com/sells-group/stopcensus/internal/geo"
	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
)

// Response kinds served by the CensusMapper API.
const (
	KindData = "data.csv"
	KindGeo  = "geo.geojson"
)

// Kinds lists every response a Fetch needs.
var Kinds = []string{KindData, KindGeo}

// APISource reads DAs from the CensusMapper API.
type APISource struct {
	baseURL string
	apiKey  string
	fetcher fetcher.Fetcher
	cache   *Cache
}

// NewAPISource creates a CensusMapper source. A nil cache disables caching.
func NewAPISource(baseURL, apiKey string, f fetcher.Fetcher, cache *Cache) *APISource {
	return &APISource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: f,
		cache:   cache,
	}
}

// Fetch downloads the attribute table and boundaries and joins them.
func (s *APISource) Fetch(ctx context.Context, req Request) ([]model.Area, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	dataBody, err := s.Raw(ctx, req, KindData)
	if err != nil {
		return nil, err
	}
	geoBody, err := s.Raw(ctx, req, KindGeo)
	if err != nil {
		return nil, err
	}

	hdr, rows, err := fetcher.ReadAll(ctx, bytes.NewReader(dataBody))
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "parse attribute table: %v", err)
	}
	attrs, err := parseAttributes(hdr, rows, req)
	if err != nil {
		return nil, err
	}

	bounds, err := decodeBoundaries(geoBody)
	if err != nil {
		return nil, err
	}

	areas, err := assemble(bounds, attrs)
	if err != nil {
		return nil, err
	}
	zap.L().Info("census: loaded dissemination areas",
		zap.String("source", "censusmapper"),
		zap.String("dataset", req.Dataset),
		zap.Int("areas", len(areas)),
	)
	return areas, nil
}

// Raw returns one raw provider response, from cache when fresh.
func (s *APISource) Raw(ctx context.Context, req Request, kind string) ([]byte, error) {
	key := req.Key(kind)
	log := zap.L().With(zap.String("component", "census"), zap.String("kind", kind))

	if s.cache != nil {
		body, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Warn("census: cache read failed, fetching", zap.Error(err))
		} else if ok {
			log.Debug("census: cache hit", zap.String("key", key[:12]))
			return body, nil
		}
	}

	form, err := s.form(req, kind)
	if err != nil {
		return nil, err
	}

	rc, err := s.fetcher.PostForm(ctx, fmt.Sprintf("%s/api/v1/%s", s.baseURL, kind), form)
	if err != nil {
		if fetcher.IsClientError(err) {
			return nil, eris.Wrapf(ErrDataUnavailable, "%s: %v", kind, err)
		}
		return nil, eris.Wrapf(err, "census: fetch %s", kind)
	}
	defer rc.Close() //nolint:errcheck

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "census: read %s", kind)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, eris.Wrapf(ErrDataUnavailable, "%s: empty response", kind)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, kind, req.Dataset, body); err != nil {
			log.Warn("census: cache write failed", zap.Error(err))
		}
	}
	log.Info("census: fetched", zap.Int("bytes", len(body)))
	return body, nil
}

func (s *APISource) form(req Request, kind string) (url.Values, error) {
	regions, err := json.Marshal(req.Regions)
	if err != nil {
		return nil, eris.Wrap(err, "census: encode regions")
	}

	form := url.Values{}
	form.Set("dataset", req.Dataset)
	form.Set("level", req.Level)
	form.Set("regions", string(regions))
	form.Set("geo_hierarchy", "true")
	form.Set("api_key", s.apiKey)

	if kind == KindData {
		vectors, err := json.Marshal(req.Vectors())
		if err != nil {
			return nil, eris.Wrap(err, "census: encode vectors")
		}
		form.Set("vectors", string(vectors))
	}
	return form, nil
}

// decodeBoundaries reads a CensusMapper GeoJSON feature collection.
func decodeBoundaries(body []byte) ([]boundary, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "decode boundaries: %v", err)
	}

	bounds := make([]boundary, 0, len(fc.Features))
	var skipped int
	for _, f := range fc.Features {
		uid := f.ID
		if uid == "" {
			uid = propString(f.Properties, "id", "GeoUID", "geo_uid")
		}
		mp, err := geo.ToMultiPolygon(f.Geometry)
		if uid == "" || err != nil {
			skipped++
			continue
		}
		mp.SetSRID(model.SRIDWGS84)

		bounds = append(bounds, boundary{
			GeoUID:   uid,
			Geometry: mp,
			Props: attributes{
				GeoUID:     uid,
				Name:       propString(f.Properties, "name"),
				AreaSqKm:   propNumber(f.Properties, "a"),
				Population: propNumber(f.Properties, "pop"),
				Households: propNumber(f.Properties, "hh"),
				Dwellings:  propNumber(f.Properties, "dw"),
			},
		})
	}
	if skipped > 0 {
		zap.L().Warn("census: skipped boundary features", zap.Int("count", skipped))
	}
	return bounds, nil
}

func propString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func propNumber(props map[string]any, key string) model.Nullable {
	switch v := props[key].(type) {
	case float64:
		return model.Some(v)
	case string:
		return metrics.ParseCount(v)
	default:
		return model.Null()
	}
}
