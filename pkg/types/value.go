package types

// Normalize converts an arbitrary caller-supplied value into the generic
// structured-value forms the collector serializes: string, bool, int64,
// float64, []interface{}, and map[string]interface{}. Integer and floating
// point inputs stay distinct. Nested maps and slices are normalized
// recursively; typed slices are widened to []interface{}.
//
// Unsupported types pass through unchanged and are left to the JSON encoder.
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case map[string]interface{}:
		return NormalizeMap(val)
	case []interface{}:
		return normalizeSlice(val)
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []int:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = int64(n)
		}
		return out
	case []int64:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]interface{}, len(val))
		for i, f := range val {
			out[i] = f
		}
		return out
	case []bool:
		out := make([]interface{}, len(val))
		for i, b := range val {
			out[i] = b
		}
		return out
	default:
		return val
	}
}

// NormalizeMap normalizes every value of a property map. Returns a new map;
// the input is not modified. A nil input yields a nil map.
func NormalizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = Normalize(v)
	}
	return out
}
