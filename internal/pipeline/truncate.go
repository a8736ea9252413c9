package pipeline

// truncateValue caps string values at max runes, recursing into maps and
// slices. Non-string leaves pass through untouched. A max of zero or less
// disables truncation.
func truncateValue(v interface{}, max int) interface{} {
	if max <= 0 {
		return v
	}
	switch val := v.(type) {
	case string:
		runes := []rune(val)
		if len(runes) > max {
			return string(runes[:max])
		}
		return val
	case map[string]interface{}:
		return truncateMap(val, max)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = truncateValue(item, max)
		}
		return out
	default:
		return v
	}
}

// truncateMap applies truncateValue to every value in the map. Keys are
// never truncated. Returns a new map; the input is not mutated.
func truncateMap(m map[string]interface{}, max int) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = truncateValue(v, max)
	}
	return out
}
