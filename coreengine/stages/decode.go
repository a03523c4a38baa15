package stages

// Tolerant readers for generator documents. encoding/json decodes numbers in
// a map[string]any as float64 and string lists as []any; these helpers absorb
// both so a stage never trips over the transport representation.

func docString(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func docBool(doc map[string]any, key string) (bool, bool) {
	v, ok := doc[key].(bool)
	return v, ok
}

func docInt(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func docStringSlice(doc map[string]any, key string) []string {
	items, ok := doc[key].([]any)
	if !ok {
		if direct, ok := doc[key].([]string); ok {
			return direct
		}
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}
