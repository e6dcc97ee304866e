package postgres

import (
	"encoding/json"
	"math"
)

// JSONB has no encoding for infinities or NaN. Non-finite metric values are
// stored as the strings "inf", "-inf" and "nan" and restored on read.

func encodeMetrics(m map[string]float64) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case math.IsInf(v, 1):
			out[k] = "inf"
		case math.IsInf(v, -1):
			out[k] = "-inf"
		case math.IsNaN(v):
			out[k] = "nan"
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}

func decodeMetrics(data []byte) (map[string]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case float64:
			out[k] = x
		case string:
			switch x {
			case "inf":
				out[k] = math.Inf(1)
			case "-inf":
				out[k] = math.Inf(-1)
			default:
				out[k] = math.NaN()
			}
		}
	}
	return out, nil
}
