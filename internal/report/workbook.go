package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/stopcensus/internal/model"
)

// WorkbookFile is the per-area metrics workbook.
const WorkbookFile = "da_metrics.xlsx"

var metricsHeader = []string{
	"GeoUID", "Name", "Population", "Area (km²)", "Stop count",
	"Stop density (per km²)", "Vehicle commuter ratio", "Average income ($)",
}

// WriteWorkbook writes one row per area and a correlation sheet. Missing
// values are left blank.
func WriteWorkbook(path string, rows []model.Row, corrs []CorrelationResult) error {
	f := xlsx.NewFile()

	bold := xlsx.NewStyle()
	bold.Font.Bold = true
	bold.ApplyFont = true

	sheet, err := f.AddSheet("Dissemination areas")
	if err != nil {
		return eris.Wrap(err, "report: add metrics sheet")
	}
	addHeader(sheet, metricsHeader, bold)

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.GeoUID)
		row.AddCell().SetString(r.Name)
		row.AddCell().SetInt(r.Population)
		row.AddCell().SetFloatWithFormat(r.AreaSqKm, "0.000")
		row.AddCell().SetInt(r.StopCount)
		addNullable(row, r.StopDensity, "0.00")
		addNullable(row, r.VehicleRatio, "0.000")
		addNullable(row, r.AverageIncome, "#,##0")
	}

	corrSheet, err := f.AddSheet("Correlations")
	if err != nil {
		return eris.Wrap(err, "report: add correlation sheet")
	}
	addHeader(corrSheet, []string{"X", "Y", "Pearson r", "Pairs", "Slope", "Intercept", "Plot"}, bold)
	for _, c := range corrs {
		row := corrSheet.AddRow()
		row.AddCell().SetString(string(c.X))
		row.AddCell().SetString(string(c.Y))
		if c.Valid {
			row.AddCell().SetFloatWithFormat(c.R, "0.0000")
		} else {
			row.AddCell().SetString("n/a")
		}
		row.AddCell().SetInt(c.N)
		if c.Fit != nil {
			row.AddCell().SetFloat(c.Fit.Slope)
			row.AddCell().SetFloat(c.Fit.Intercept)
		} else {
			row.AddCell()
			row.AddCell()
		}
		row.AddCell().SetString(c.File)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, names []string, style *xlsx.Style) {
	row := sheet.AddRow()
	for _, n := range names {
		c := row.AddCell()
		c.SetString(n)
		c.SetStyle(style)
	}
}

func addNullable(row *xlsx.Row, v model.Nullable, format string) {
	c := row.AddCell()
	if v.Valid {
		c.SetFloatWithFormat(v.Value, format)
	}
}
