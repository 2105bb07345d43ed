package scenario

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a single market input. Null models a platform read that
// returned nothing; Num may hold NaN or an infinity.
type Value struct {
	Null bool
	Num  float64
}

func Null() Value { return Value{Null: true} }

func Num(f float64) Value { return Value{Num: f} }

// Degenerate reports whether a strategy consuming v without a guard
// would be acting on garbage.
func (v Value) Degenerate() bool {
	return v.Null || math.IsNaN(v.Num) || math.IsInf(v.Num, 0)
}

func (v Value) String() string {
	switch {
	case v.Null:
		return "null"
	case math.IsNaN(v.Num):
		return "nan"
	case math.IsInf(v.Num, 1):
		return "+inf"
	case math.IsInf(v.Num, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// MarshalJSON encodes non-finite numbers as strings since JSON has no
// representation for them.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Null {
		return []byte("null"), nil
	}
	if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Num)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "nan":
			*v = Num(math.NaN())
		case "+inf":
			*v = Num(math.Inf(1))
		case "-inf":
			*v = Num(math.Inf(-1))
		default:
			return fmt.Errorf("unknown value %q", s)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	*v = Num(f)
	return nil
}
