package report

import (
	"encoding/json"
	"html/template"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/stopcensus/internal/metrics"
	"github.com/sells-group/stopcensus/internal/model"
)

const (
	StopMapFile  = "stops_map.html"
	LayerMapFile = "layers_map.html"
)

const leafletHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
html, body, #map { height: 100%; margin: 0; }
.legend { background: #fff; padding: 6px 8px; font: 12px sans-serif; border-radius: 4px; }
.legend .bar { width: 160px; height: 10px; margin: 4px 0; }
</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map');
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 19,
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
`

var stopMapTmpl = template.Must(template.New("stops").Parse(leafletHead + `
var areas = L.geoJSON({{.Areas}}, {
  style: { color: '#3388ff', weight: 1, fill: false }
}).addTo(map);
{{.Stops}}.forEach(function (s) {
  L.circleMarker([s.lat, s.lon], {
    radius: 3, color: '#d7301f', weight: 1, fillColor: '#d7301f', fillOpacity: 0.8
  }).bindTooltip(s.name).addTo(map);
});
map.fitBounds(areas.getBounds());
</script>
</body>
</html>
`))

var layerMapTmpl = template.Must(template.New("layers").Parse(leafletHead + `
var data = {{.Areas}};
var layers = {{.Layers}};
var base = {};
var legend = L.control({ position: 'bottomright' });
legend.onAdd = function () { this._div = L.DomUtil.create('div', 'legend'); return this._div; };
legend.show = function (l) {
  this._div.innerHTML = '<b>' + l.label + '</b>' +
    '<div class="bar" style="background: linear-gradient(to right, ' + l.ramp.join(', ') + ')"></div>' +
    l.min + ' &ndash; ' + l.max +
    '<br><span style="background:{{.NullColor}}">&nbsp;&nbsp;&nbsp;</span> n/a';
};
legend.addTo(map);
layers.forEach(function (l, i) {
  var layer = L.geoJSON(data, {
    style: function (f) {
      return { fillColor: f.properties.fill[l.metric], color: '#555', weight: 0.5, fillOpacity: l.opacity };
    },
    onEachFeature: function (f, lyr) { lyr.bindPopup(f.properties.popup); }
  });
  base[l.label] = layer;
  layer.legend = l;
  if (i === 0) {
    layer.addTo(map);
    legend.show(l);
    map.fitBounds(layer.getBounds());
  }
});
map.on('baselayerchange', function (e) { legend.show(e.layer.legend); });
L.control.layers(base, null, { collapsed: false }).addTo(map);
</script>
</body>
</html>
`))

type stopMarker struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

type layerView struct {
	Metric  model.Metric `json:"metric"`
	Label   string       `json:"label"`
	Ramp    []string     `json:"ramp"`
	Min     string       `json:"min"`
	Max     string       `json:"max"`
	Opacity float64      `json:"opacity"`
}

// WriteStopMap renders DA outlines and one marker per stop.
func WriteStopMap(path string, areas []model.Area, stops []model.Stop) error {
	fc, err := featureCollection(areas, func(a model.Area) map[string]any {
		return map[string]any{"geo_uid": a.GeoUID}
	})
	if err != nil {
		return err
	}

	markers := make([]stopMarker, 0, len(stops))
	for _, s := range stops {
		name := s.Name
		if s.Code != "" {
			name += " (" + s.Code + ")"
		}
		markers = append(markers, stopMarker{Lat: s.Lat, Lon: s.Lon, Name: name})
	}

	return render(path, stopMapTmpl, map[string]any{
		"Title": "Transit stops",
		"Areas": fc,
		"Stops": markers,
	})
}

// WriteLayerMap renders one choropleth base layer per metric. Every popup
// lists all metrics plus the area, whichever layer is visible.
func WriteLayerMap(path string, areas []model.Area, rows []model.Row, styles Styles) error {
	byUID := make(map[string]model.Row, len(rows))
	for _, r := range rows {
		byUID[r.GeoUID] = r
	}

	scales := make(map[model.Metric]Scale, len(model.Metrics))
	views := make([]layerView, 0, len(model.Metrics))
	for _, m := range model.Metrics {
		st := styles[m]
		sum := metrics.Summarize(rows, m)
		sc, err := NewScale(sum, st.Ramp)
		if err != nil {
			return eris.Wrapf(err, "report: layer %s", m)
		}
		scales[m] = sc
		views = append(views, layerView{
			Metric:  m,
			Label:   st.Label,
			Ramp:    st.Ramp,
			Min:     formatValue(model.Some(sum.Min), st.Decimal),
			Max:     formatValue(model.Some(sum.Max), st.Decimal),
			Opacity: st.Opacity,
		})
	}

	fc, err := featureCollection(areas, func(a model.Area) map[string]any {
		r, ok := byUID[a.GeoUID]
		if !ok {
			r = model.Row{GeoUID: a.GeoUID, Name: a.Name, AreaSqKm: a.AreaSqKm}
		}
		fill := make(map[string]string, len(model.Metrics))
		for _, m := range model.Metrics {
			v := r.Value(m)
			if !ok {
				v = model.Null()
			}
			fill[string(m)] = scales[m].Color(v)
		}
		return map[string]any{
			"geo_uid": a.GeoUID,
			"fill":    fill,
			"popup":   popupHTML(r, styles),
		}
	})
	if err != nil {
		return err
	}

	return render(path, layerMapTmpl, map[string]any{
		"Title":     "Dissemination area metrics",
		"Areas":     fc,
		"Layers":    views,
		"NullColor": NullColor,
	})
}

// popupHTML lists every metric for one area.
func popupHTML(r model.Row, styles Styles) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(template.HTMLEscapeString(r.GeoUID))
	if r.Name != "" {
		b.WriteString(" ")
		b.WriteString(template.HTMLEscapeString(r.Name))
	}
	b.WriteString("</b>")
	for _, m := range model.Metrics {
		st := styles[m]
		b.WriteString("<br>")
		b.WriteString(template.HTMLEscapeString(st.Label))
		b.WriteString(": ")
		b.WriteString(formatValue(r.Value(m), st.Decimal))
	}
	b.WriteString("<br>Area: ")
	b.WriteString(formatValue(model.Some(r.AreaSqKm), 3))
	b.WriteString(" km²")
	return b.String()
}

// featureCollection encodes areas as GeoJSON for embedding in a page.
func featureCollection(areas []model.Area, props func(model.Area) map[string]any) (json.RawMessage, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(areas))}
	for _, a := range areas {
		if a.Geometry == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         a.GeoUID,
			Geometry:   a.Geometry,
			Properties: props(a),
		})
	}
	b, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "report: encode geojson")
	}
	return b, nil
}

func render(path string, tmpl *template.Template, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := tmpl.Execute(f, data); err != nil {
		return eris.Wrapf(err, "report: render %s", path)
	}
	zap.L().Info("report: wrote page", zap.String("path", path))
	return nil
}
