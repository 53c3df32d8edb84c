// Package metrics derives per-area ratio columns from joined census and
// transit data. Every function here is pure.
package metrics

import (
	"strconv"
	"strings"

	"github.com/sells-group/stopcensus/internal/model"
)

// suppressed holds the placeholders Statistics Canada and CensusMapper use
// for values withheld for confidentiality or data quality.
var suppressed = map[string]bool{
	"":    true,
	"x":   true,
	"X":   true,
	"F":   true,
	"..":  true,
	"...": true,
	"-":   true,
	"NA":  true,
	"N/A": true,
}

// IsSuppressed reports whether s is a census suppression placeholder.
func IsSuppressed(s string) bool {
	return suppressed[strings.TrimSpace(s)]
}

// ParseIncome parses a possibly currency-formatted amount ("$45,321.50").
// Suppressed or non-numeric input yields null, never zero.
func ParseIncome(s string) model.Nullable {
	s = strings.TrimSpace(s)
	if IsSuppressed(s) {
		return model.Null()
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Null()
	}
	return model.Some(v)
}

// ParseCount parses a census count column. Suppressed or non-numeric input
// yields null.
func ParseCount(s string) model.Nullable {
	s = strings.TrimSpace(s)
	if IsSuppressed(s) {
		return model.Null()
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return model.Null()
	}
	return model.Some(v)
}
