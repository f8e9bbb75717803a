package normalizer

// Plain converts v into Go's generic representation: map[string]any, []any,
// string, []byte, bool and int64. Bytes keys become string keys holding the
// same bytes.
func Plain(v Value) any {
	switch v := v.(type) {
	case Map:
		out := make(map[string]any, v.Len())
		for _, e := range v.entries {
			k, _ := keyString(e.Key)
			out[k] = Plain(e.Value)
		}
		return out
	case List:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Plain(item)
		}
		return out
	case Text:
		return string(v)
	case Bytes:
		return []byte(v)
	case Bool:
		return bool(v)
	case Int:
		return int64(v)
	default:
		return nil
	}
}

// PlainMaps applies Plain to each map.
func PlainMaps(maps []Map) []map[string]any {
	out := make([]map[string]any, len(maps))
	for i, m := range maps {
		out[i] = Plain(m).(map[string]any)
	}
	return out
}
