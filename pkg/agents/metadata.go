package agents

import (
	"encoding/json"
	"strconv"
)

// Numeric coerces a JSON-decoded metadata value to float64. Envelope
// metadata arrives as map[string]any, so numbers may surface as float64,
// json.Number, or strings depending on the producer.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
