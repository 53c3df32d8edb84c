package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Nullable is a float that may be missing. Census suppression, unparseable
// source values and undefined ratios all surface as Valid == false.
type Nullable struct {
	Value float64
	Valid bool
}

// Some wraps v as a present value. Non-finite values collapse to null.
func Some(v float64) Nullable {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Nullable{}
	}
	return Nullable{Value: v, Valid: true}
}

// Null returns a missing value.
func Null() Nullable { return Nullable{} }

// Or returns the value, or def when missing.
func (n Nullable) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

// String renders the value, or "n/a".
func (n Nullable) String() string {
	if !n.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// MarshalJSON encodes a missing value as null.
func (n Nullable) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON accepts a number or null.
func (n *Nullable) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Nullable{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}
