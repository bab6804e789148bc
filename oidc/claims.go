package oidc

import (
	"encoding/json"
)

// Claims is a set of claims asserted by the provider, keyed by claim name.
type Claims map[string]interface{}

// Has reports whether the claim name is present.
func (c Claims) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Get returns the value of the claim name, nil when it is absent.
func (c Claims) Get(name string) interface{} {
	return c[name]
}

// String returns the value of the claim name when it is a string.
func (c Claims) String(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// Bool returns the value of the claim name when it is a bool.
func (c Claims) Bool(name string) (bool, bool) {
	b, ok := c[name].(bool)
	return b, ok
}

// Object returns the value of the claim name when it is a JSON object.
func (c Claims) Object(name string) (Claims, bool) {
	m, ok := c[name].(map[string]interface{})
	return Claims(m), ok
}

// JSON returns the claims as a JSON object.
func (c Claims) JSON() (string, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(c))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// deepCopyMap copies JSON shaped data so callers can't mutate what the engine
// holds.
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = deepCopyValue(v)
	}
	return cp
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case Claims:
		return Claims(deepCopyMap(t))
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i := range t {
			cp[i] = deepCopyValue(t[i])
		}
		return cp
	default:
		return v
	}
}
