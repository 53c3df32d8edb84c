package report

import (
	"html/template"
	"time"

	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
)

// IndexFile is the report landing page.
const IndexFile = "index.html"

// Summary is what the index page reports about a run.
type Summary struct {
	RunID        string
	GeneratedAt  time.Time
	Dataset      string
	Regions      string
	Areas        int
	Stops        int
	Unmatched    int
	Rows         []model.Row
	Correlations []CorrelationResult
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Transit stops and census dissemination areas</title>
<style>
body { font: 14px sans-serif; margin: 2em; max-width: 960px; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
img { max-width: 100%; border: 1px solid #eee; }
.meta { color: #666; }
</style>
</head>
<body>
<h1>Transit stops and census dissemination areas</h1>
<p class="meta">Run {{.RunID}} &middot; generated {{.Generated}} &middot; {{.Dataset}} {{.Regions}}</p>
<p>{{.Areas}} dissemination areas, {{.Stops}} stops ({{.Unmatched}} outside every area).</p>
<ul>
<li><a href="stops_map.html">Stop map</a></li>
<li><a href="layers_map.html">Metric layers map</a></li>
<li><a href="da_metrics.xlsx">Per-area metrics workbook</a></li>
</ul>
<h2>Metrics</h2>
<table>
<tr><th>Metric</th><th>Areas</th><th>Missing</th><th>Min</th><th>Mean</th><th>Max</th></tr>
{{range .Metrics}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td>{{.Nulls}}</td><td>{{.Min}}</td><td>{{.Mean}}</td><td>{{.Max}}</td></tr>
{{end}}</table>
<h2>Correlations</h2>
<table>
<tr><th>Pair</th><th>Pearson r</th><th>Pairs</th></tr>
{{range .Correlations}}<tr><td>{{.Pair}}</td><td>{{.R}}</td><td>{{.N}}</td></tr>
{{end}}</table>
{{range .Correlations}}<h3>{{.Pair}}</h3>
<img src="{{.File}}" alt="{{.Pair}}">
{{end}}
</body>
</html>
`))

type metricView struct {
	Label, Count, Nulls, Min, Mean, Max string
}

type corrView struct {
	Pair, R, N, File string
}

type indexView struct {
	RunID, Generated, Dataset, Regions string
	Areas, Stops, Unmatched            string
	Metrics                            []metricView
	Correlations                       []corrView
}

// WriteIndex renders the landing page linking every artefact.
func WriteIndex(path string, s Summary, styles Styles) error {
	data := indexView{
		RunID:     s.RunID,
		Generated: s.GeneratedAt.Format(time.RFC3339),
		Dataset:   s.Dataset,
		Regions:   s.Regions,
		Areas:     formatInt(s.Areas),
		Stops:     formatInt(s.Stops),
		Unmatched: formatInt(s.Unmatched),
	}

	for _, m := range model.Metrics {
		st := styles[m]
		sum := metrics.Summarize(s.Rows, m)
		mv := metricView{
			Label: st.Label,
			Count: formatInt(sum.Count),
			Nulls: formatInt(sum.Nulls),
			Min:   "n/a",
			Mean:  "n/a",
			Max:   "n/a",
		}
		if sum.Count > 0 {
			mv.Min = formatValue(model.Some(sum.Min), st.Decimal)
			mv.Mean = formatValue(model.Some(sum.Mean), st.Decimal+2)
			mv.Max = formatValue(model.Some(sum.Max), st.Decimal)
		}
		data.Metrics = append(data.Metrics, mv)
	}

	for _, c := range s.Correlations {
		cv := corrView{
			Pair: styles[c.Y].Label + " vs " + styles[c.X].Label,
			R:    "n/a",
			N:    formatInt(c.N),
			File: c.File,
		}
		if c.Valid {
			cv.R = formatValue(model.Some(c.R), 4)
		}
		data.Correlations = append(data.Correlations, cv)
	}

	return render(path, indexTmpl, data)
}
