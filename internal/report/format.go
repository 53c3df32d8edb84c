package report

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/stopcensus/internal/model"
)

var printer = message.NewPrinter(language.MustParse("en-CA"))

// formatInt groups thousands ("12,345").
func formatInt(n int) string {
	return printer.Sprint(number.Decimal(n))
}

// formatValue renders v with a fixed number of fraction digits, or "n/a".
func formatValue(v model.Nullable, decimals int) string {
	if !v.Valid {
		return "n/a"
	}
	return printer.Sprint(number.Decimal(v.Value,
		number.MinFractionDigits(decimals),
		number.MaxFractionDigits(decimals),
	))
}
