package models

import (
	"encoding/json"
	"math"
)

// Int64Value converts a decoded document value into an int64. Stores decode
// numbers either as json.Number or as float64, and callers may hand in native
// Go integers, so all of them are accepted. Fractional values are truncated.
func Int64Value(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}

		f, err := n.Float64()
		if err != nil {
			return 0, false
		}

		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}

		return int64(n), true
	default:
		return 0, false
	}
}

// IntegerValue is Int64Value for identifiers: values with a fractional part
// are rejected instead of truncated.
func IntegerValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}

		f, err := n.Float64()
		if err != nil {
			return 0, false
		}

		return integralFloat(f)
	case float64:
		return integralFloat(n)
	case float32:
		return integralFloat(float64(n))
	default:
		return Int64Value(v)
	}
}

func integralFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) {
		return 0, false
	}

	return floatToInt64(f)
}

func floatToInt64(f float64) (int64, bool) {
	// 1<<63 is exactly representable as a float64; MaxInt64 is not.
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= 1<<63 || f < -1<<63 {
		return 0, false
	}

	return int64(f), true
}
