// Package transit loads boarding locations from a GTFS feed.
package transit

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/fetcher"
	"github.com/sells-group/stopcensus/internal/model"
)

// ErrDataUnavailable means no usable stop table could be read.
var ErrDataUnavailable = eris.New("transit: stop data unavailable")

const stopsFile = "stops.txt"

var requiredColumns = []string{"stop_id", "stop_name", "stop_lat", "stop_lon"}

// Loader reads GTFS stops.
type Loader struct {
	// IncludeStations keeps parent stations, entrances and nodes
	// (location_type 1-4) alongside boarding stops.
	IncludeStations bool

	// Fetcher downloads the feed when the path is an http(s) URL.
	Fetcher fetcher.Fetcher
}

// Result is the outcome of a stop load.
type Result struct {
	Stops     []model.Stop
	Malformed int // rows with unparseable or out-of-range coordinates
	Excluded  int // non-boarding rows dropped by location_type
}

// LoadStops reads boarding stops with the default loader.
func LoadStops(ctx context.Context, path string) ([]model.Stop, error) {
	res, err := (&Loader{}).Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return res.Stops, nil
}

// Load reads a GTFS stops.txt, or the stops.txt inside a GTFS zip. path may
// be a local file or an http(s) URL.
func (l *Loader) Load(ctx context.Context, path string) (*Result, error) {
	log := zap.L().With(zap.String("component", "transit"), zap.String("path", path))

	tmp, err := os.MkdirTemp("", "stopcensus-gtfs-*")
	if err != nil {
		return nil, eris.Wrap(err, "transit: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	local, err := fetcher.Localize(ctx, l.Fetcher, path, tmp)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "download %s: %v", path, err)
	}
	if _, err := os.Stat(local); err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "open %s: %v", local, err)
	}

	src := local
	if strings.EqualFold(filepath.Ext(local), ".zip") {
		src, err = fetcher.ExtractZIPFile(local, stopsFile, tmp)
		if err != nil {
			return nil, eris.Wrapf(ErrDataUnavailable, "extract %s: %v", stopsFile, err)
		}
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrapf(ErrDataUnavailable, "open %s: %v", src, err)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
	})

	res := &Result{}
	var hdr fetcher.Header
	for row := range rowCh {
		if hdr == nil {
			hdr = fetcher.NewHeader(<-headerCh)
			if missing := hdr.Missing(requiredColumns...); len(missing) > 0 {
				// Drain so the reader goroutine can exit.
				for range rowCh {
				}
				return nil, eris.Wrapf(ErrDataUnavailable, "missing columns %v", missing)
			}
		}

		if !l.IncludeStations && !isBoarding(hdr.Get(row, "location_type")) {
			res.Excluded++
			continue
		}

		stop, ok := parseStop(hdr, row)
		if !ok {
			res.Malformed++
			log.Debug("transit: skipping malformed stop", zap.Strings("row", row))
			continue
		}
		res.Stops = append(res.Stops, stop)
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrap(err, "transit: read stops")
		}
	}

	if res.Malformed > 0 {
		log.Warn("transit: skipped malformed stops", zap.Int("count", res.Malformed))
	}
	if len(res.Stops) == 0 {
		return nil, eris.Wrap(ErrDataUnavailable, "no valid stops")
	}

	log.Info("transit: loaded stops",
		zap.Int("stops", len(res.Stops)),
		zap.Int("excluded", res.Excluded),
	)
	return res, nil
}

// isBoarding reports whether a GTFS location_type is a stop or platform.
func isBoarding(locationType string) bool {
	return locationType == "" || locationType == "0"
}

func parseStop(hdr fetcher.Header, row []string) (model.Stop, bool) {
	id := hdr.Get(row, "stop_id")
	if id == "" {
		return model.Stop{}, false
	}
	lat, err := strconv.ParseFloat(hdr.Get(row, "stop_lat"), 64)
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return model.Stop{}, false
	}
	lon, err := strconv.ParseFloat(hdr.Get(row, "stop_lon"), 64)
	if err != nil || math.IsNaN(lon) || lon < -180 || lon > 180 {
		return model.Stop{}, false
	}
	return model.Stop{
		ID:   id,
		Code: hdr.Get(row, "stop_code"),
		Name: hdr.Get(row, "stop_name"),
		Lat:  lat,
		Lon:  lon,
	}, true
}
