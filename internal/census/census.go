// Package census loads dissemination area boundaries and attributes from
// CensusMapper or from a local Statistics Canada boundary file.
package census

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/stopcensus/internal/model"
)

// ErrDataUnavailable means the requested region or vectors returned no data.
var ErrDataUnavailable = eris.New("census: data unavailable")

// Request identifies one census extract.
type Request struct {
	Dataset string              `json:"dataset"`
	Regions map[string][]string `json:"regions"`
	Level   string              `json:"level"`
	// IncomeVector holds average total income; VehicleVector holds
	// commuters travelling by car, truck or van.
	IncomeVector  string `json:"income_vector"`
	VehicleVector string `json:"vehicle_vector"`
}

// DefaultRequest is the Ottawa-Gatineau CMA at DA level from the 2016 census.
func DefaultRequest() Request {
	return Request{
		Dataset:       "CA16",
		Regions:       map[string][]string{"CMA": {"35505"}},
		Level:         "DA",
		IncomeVector:  "v_CA16_2397",
		VehicleVector: "v_CA16_5795",
	}
}

// Vectors lists the attribute vectors in request order.
func (r Request) Vectors() []string {
	return []string{r.IncomeVector, r.VehicleVector}
}

// Validate rejects requests no provider can answer.
func (r Request) Validate() error {
	switch {
	case r.Dataset == "":
		return eris.New("census: dataset is required")
	case r.Level == "":
		return eris.New("census: level is required")
	case len(r.Regions) == 0:
		return eris.New("census: at least one region is required")
	case r.IncomeVector == "" || r.VehicleVector == "":
		return eris.New("census: income and vehicle vectors are required")
	}
	return nil
}

// Key is a stable SHA-256 digest of the request plus a response kind.
func (r Request) Key(kind string) string {
	c := r
	c.Regions = make(map[string][]string, len(r.Regions))
	for lvl, ids := range r.Regions {
		sorted := slices.Clone(ids)
		slices.Sort(sorted)
		c.Regions[strings.ToUpper(lvl)] = sorted
	}
	// encoding/json sorts map keys, so the encoding is canonical.
	b, _ := json.Marshal(struct {
		Kind string `json:"kind"`
		Request
	}{kind, c})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Source fetches dissemination areas with geometry in EPSG:4326.
type Source interface {
	Fetch(ctx context.Context, req Request) ([]model.Area, error)
}
