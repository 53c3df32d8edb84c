package metrics

import (
	"math"

	"github.com/sells-group/stopcensus/internal/model"
)

// Summary describes one metric column across all areas.
type Summary struct {
	Metric model.Metric `json:"metric"`
	Count  int          `json:"count"`
	Nulls  int          `json:"nulls"`
	Min    float64      `json:"min"`
	Max    float64      `json:"max"`
	Mean   float64      `json:"mean"`
}

// Summarize computes min, max and mean over the non-null values of m.
// Min and Max are zero when every value is null.
func Summarize(rows []model.Row, m model.Metric) Summary {
	s := Summary{Metric: m, Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, r := range rows {
		v := r.Value(m)
		if !v.Valid {
			s.Nulls++
			continue
		}
		s.Count++
		sum += v.Value
		s.Min = math.Min(s.Min, v.Value)
		s.Max = math.Max(s.Max, v.Value)
	}
	if s.Count == 0 {
		s.Min, s.Max = 0, 0
		return s
	}
	s.Mean = sum / float64(s.Count)
	return s
}

// SummarizeAll returns one summary per derived metric.
func SummarizeAll(rows []model.Row) map[model.Metric]Summary {
	out := make(map[model.Metric]Summary, len(model.Metrics))
	for _, m := range model.Metrics {
		out[m] = Summarize(rows, m)
	}
	return out
}

// TotalStops sums stop counts across rows.
func TotalStops(rows []model.Row) int {
	var n int
	for _, r := range rows {
		n += r.StopCount
	}
	return n
}
