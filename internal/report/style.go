// Package report renders maps, plots, a workbook and an index page from
// derived per-area metrics. Nothing here writes back to an input source.
package report

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/stopcensus/internal/model"
)

// NullColor fills areas whose metric is missing.
const NullColor = "#bdbdbd"

// LayerStyle configures one choropleth layer.
type LayerStyle struct {
	Label   string   `yaml:"label"`
	Ramp    []string `yaml:"ramp"`    // hex colours from min to max
	Decimal int      `yaml:"decimal"` // fraction digits shown in popups
	Opacity float64  `yaml:"opacity"`
}

// Styles holds per-metric layer styles.
type Styles map[model.Metric]LayerStyle

// DefaultStyles returns the built-in layer styles.
func DefaultStyles() Styles {
	return Styles{
		model.MetricStopCount:     {Label: "Stop count", Ramp: []string{"#ffffb2", "#fd8d3c", "#bd0026"}, Decimal: 0, Opacity: 0.7},
		model.MetricVehicleRatio:  {Label: "Vehicle commuter ratio", Ramp: []string{"#f7fcf5", "#74c476", "#00441b"}, Decimal: 3, Opacity: 0.7},
		model.MetricAverageIncome: {Label: "Average income ($)", Ramp: []string{"#f7fbff", "#6baed6", "#08306b"}, Decimal: 0, Opacity: 0.7},
		model.MetricStopDensity:   {Label: "Stop density (per km²)", Ramp: []string{"#fcfbfd", "#9e9ac8", "#3f007d"}, Decimal: 2, Opacity: 0.7},
	}
}

// LoadStyles reads a YAML layer file over the defaults. An empty path
// returns the defaults; unset fields keep their default value.
func LoadStyles(path string) (Styles, error) {
	styles := DefaultStyles()
	if path == "" {
		return styles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read layer file %s", path)
	}

	var file struct {
		Layers map[string]LayerStyle `yaml:"layers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "report: parse layer file")
	}

	for name, override := range file.Layers {
		m := model.Metric(name)
		base, ok := styles[m]
		if !ok {
			return nil, eris.Errorf("report: unknown layer %q", name)
		}
		if override.Label != "" {
			base.Label = override.Label
		}
		if len(override.Ramp) > 0 {
			for _, c := range override.Ramp {
				if _, err := parseHex(c); err != nil {
					return nil, eris.Wrapf(err, "report: layer %s", name)
				}
			}
			base.Ramp = override.Ramp
		}
		if override.Decimal > 0 {
			base.Decimal = override.Decimal
		}
		if override.Opacity > 0 {
			base.Opacity = override.Opacity
		}
		styles[m] = base
	}
	return styles, nil
}
