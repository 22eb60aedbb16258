package process

import "github.com/kmordal/taskloom/pkg/models"

// Parameters is the loosely typed parameter bag handed to a process,
// typically decoded from an agent tool invocation.
type Parameters map[string]any

// String returns the named string parameter, or "" when absent or of the
// wrong type.
func (p Parameters) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns the named boolean parameter.
func (p Parameters) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Map returns the named nested map, or nil.
func (p Parameters) Map(key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

// resultString reads a string field out of a child task's result payload.
func resultString(data models.Result, key string) string {
	s, _ := data[key].(string)
	return s
}

// resultBool reads a boolean field out of a child task's result payload.
func resultBool(data models.Result, key string) bool {
	b, _ := data[key].(bool)
	return b
}

// resultFloat reads a numeric field, tolerating the int/float ambiguity
// that JSON decoding leaves behind.
func resultFloat(data models.Result, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// resultInt reads an integer field with the same tolerance.
func resultInt(data models.Result, key string) (int, bool) {
	switch v := data[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// resultStrings reads a list-of-strings field, accepting both []string and
// the []any shape JSON decoding produces.
func resultStrings(data models.Result, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// resultMaps reads a list-of-objects field.
func resultMaps(data models.Result, key string) []map[string]any {
	switch v := data[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// resultInts reads a list-of-integers field.
func resultInts(data any) []int {
	switch v := data.(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			}
		}
		return out
	default:
		return nil
	}
}
