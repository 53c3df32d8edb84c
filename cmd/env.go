package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/census"
	"github.com/sells-group/stopcensus/internal/config"
	"github.com/sells-group/stopcensus/internal/db"
	"github.com/sells-group/stopcensus/internal/fetcher"
	"github.com/sells-group/stopcensus/internal/report"
	"github.com/sells-group/stopcensus/internal/spatial"
	"github.com/sells-group/stopcensus/internal/transit"
)

// censusRequest builds the provider request from configuration.
func censusRequest(c *config.Config) census.Request {
	ids := make([]string, 0, len(c.Census.RegionIDs))
	for _, id := range c.Census.RegionIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return census.Request{
		Dataset:       c.Census.Dataset,
		Regions:       map[string][]string{strings.ToUpper(c.Census.RegionLevel): ids},
		Level:         c.Census.Level,
		IncomeVector:  c.Census.IncomeVector,
		VehicleVector: c.Census.VehicleVector,
	}
}

// openCache opens the response cache, or returns nil when caching is off.
func openCache(ctx context.Context, c *config.Config, disabled bool) (*census.Cache, error) {
	if disabled || c.Census.CachePath == "" {
		return nil, nil
	}
	ttl := time.Duration(c.Census.CacheTTLHours) * time.Hour
	return census.OpenCache(ctx, c.Census.CachePath, ttl)
}

// newFetcher builds the rate-limited HTTP client every remote input shares.
func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RatePerSec: c.Census.RatePerSec,
		Timeout:    time.Duration(c.Census.TimeoutSecs) * time.Second,
	})
}

// newStopLoader reads stops from a local path or an http(s) GTFS feed.
func newStopLoader(c *config.Config) *transit.Loader {
	return &transit.Loader{IncludeStations: c.Stops.IncludeStations, Fetcher: newFetcher(c)}
}

// newAPISource wires the CensusMapper client with its fetcher and cache.
func newAPISource(c *config.Config, cache *census.Cache) *census.APISource {
	return census.NewAPISource(c.Census.BaseURL, c.Census.APIKey, newFetcher(c), cache)
}

// openSource builds the configured census source. The returned close func
// releases the cache and is never nil.
func openSource(ctx context.Context, c *config.Config, noCache bool) (census.Source, func(), error) {
	switch c.Census.Source {
	case "shapefile":
		src := census.NewShapefileSource(c.Census.ShapefilePath, c.Census.AttributesPath, c.Census.SourceCRS).
			WithEncoding(c.Census.AttributesEncoding).
			WithFetcher(newFetcher(c))
		return src, func() {}, nil
	case "api":
		cache, err := openCache(ctx, c, noCache)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if cache != nil {
				_ = cache.Close()
			}
		}
		return newAPISource(c, cache), closeFn, nil
	default:
		return nil, nil, eris.Errorf("unknown census source %q", c.Census.Source)
	}
}

// openJoiner builds the configured spatial join backend.
func openJoiner(ctx context.Context, c *config.Config) (spatial.Joiner, func(), error) {
	switch c.Join.Backend {
	case "memory":
		return spatial.NewMemoryJoiner(), func() {}, nil
	case "postgis":
		pool, err := db.Connect(ctx, c.Join.DatabaseURL, 4)
		if err != nil {
			return nil, nil, err
		}
		j := spatial.NewPostGISJoiner(pool)
		if err := j.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		zap.L().Info("using postgis join backend")
		return j, pool.Close, nil
	default:
		return nil, nil, eris.Errorf("unknown join backend %q", c.Join.Backend)
	}
}

// loadStyles reads the layer style file when one is configured.
func loadStyles(c *config.Config) (report.Styles, error) {
	if c.Report.LayersFile == "" {
		return report.DefaultStyles(), nil
	}
	return report.LoadStyles(c.Report.LayersFile)
}
