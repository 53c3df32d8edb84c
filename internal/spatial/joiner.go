// Package spatial counts transit stops per dissemination area.
//
// Both backends treat polygons as closed: a stop on an area's edge is
// inside it, and a stop on the edge shared by two areas counts for both.
// A stop strictly inside a hole is outside the area.
package spatial

import (
	"context"

	"github.com/sells-group/stopcensus/internal/model"
)

// Result holds per-area stop counts.
type Result struct {
	// Counts has one entry per area GeoUID, zero when no stop falls inside.
	Counts map[string]int
	// Unmatched is the number of stops covered by no area.
	Unmatched int
}

// Total is the sum of all per-area counts. Stops on shared edges count once
// per area.
func (r *Result) Total() int {
	var n int
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Joiner assigns stops to areas. Areas and stops must be in EPSG:4326.
type Joiner interface {
	CountStops(ctx context.Context, areas []model.Area, stops []model.Stop) (*Result, error)
}

func newResult(areas []model.Area) *Result {
	res := &Result{Counts: make(map[string]int, len(areas))}
	for _, a := range areas {
		res.Counts[a.GeoUID] = 0
	}
	return res
}
