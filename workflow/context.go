package workflow

// Context is the accumulating key-value state threaded through workflow
// steps. Steps must treat the incoming Context as read-only and return a new
// one (Clone/With make that cheap to do correctly). A Context lives for one
// execution; it is never persisted, only extracted metrics are.
type Context map[string]any

// NewContext creates an empty execution context.
func NewContext() Context {
	return make(Context)
}

// Clone returns a shallow copy of the context. Nested maps and slices are
// shared; steps that modify nested values should copy them first.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a copy of the context with key set to value.
func (c Context) With(key string, value any) Context {
	out := c.Clone()
	out[key] = value
	return out
}

// Merge returns a copy of the context with all entries from other applied on
// top. Keys present in both take the value from other.
func (c Context) Merge(other Context) Context {
	out := c.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (c Context) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// GetString returns the string value for key, or "" if absent or not a
// string.
func (c Context) GetString(key string) string {
	v, _ := c[key].(string)
	return v
}

// GetInt returns the integer value for key. Numeric JSON round-trips produce
// float64, so those are accepted and truncated.
func (c Context) GetInt(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return 0
	}
}

// GetFloat returns the float64 value for key, accepting any numeric type.
func (c Context) GetFloat(key string) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// GetBool returns the bool value for key, or false if absent or not a bool.
func (c Context) GetBool(key string) bool {
	v, _ := c[key].(bool)
	return v
}

// GetMap returns the nested map value for key, or nil.
func (c Context) GetMap(key string) map[string]any {
	switch v := c[key].(type) {
	case map[string]any:
		return v
	case Context:
		return v
	default:
		return nil
	}
}
