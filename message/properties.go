package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Properties is an ordered mapping of string keys to typed values. Lookup is
// order-independent; serialization preserves insertion order so a message
// round-trips byte-identically across the wire.
//
// Supported value types: string, int64, float64, bool, []byte, and nested
// *Properties. Set normalizes the smaller integer and float types; anything
// else is rejected.
type Properties struct {
	keys   []string
	values map[string]any
}

// NewProperties creates an empty property bag.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]any)}
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the property keys in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Set stores a value under key, preserving the key's original insertion
// position when overwriting. Returns an error for unsupported value types.
func (p *Properties) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("property key must not be empty")
	}

	normalized, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("property %q: %w", key, err)
	}

	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = normalized
	return nil
}

func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case string, int64, float64, bool:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case []byte:
		dup := make([]byte, len(v))
		copy(dup, v)
		return dup, nil
	case *Properties:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// Get returns the raw value for key.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// GetString returns the string value for key, or def if absent or mistyped.
func (p *Properties) GetString(key, def string) string {
	if v, ok := p.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// GetInt returns the integer value for key, or def if absent or mistyped.
// Whole-valued floats (the usual product of JSON decoding) convert cleanly.
func (p *Properties) GetInt(key string, def int64) int64 {
	if v, ok := p.Get(key); ok {
		switch n := v.(type) {
		case int64:
			return n
		case float64:
			if n == float64(int64(n)) {
				return int64(n)
			}
		}
	}
	return def
}

// GetFloat returns the float value for key, or def if absent or mistyped.
func (p *Properties) GetFloat(key string, def float64) float64 {
	if v, ok := p.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return def
}

// GetBool returns the boolean value for key, or def if absent or mistyped.
func (p *Properties) GetBool(key string, def bool) bool {
	if v, ok := p.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// GetBytes returns a copy of the byte value for key, or nil if absent or
// mistyped.
func (p *Properties) GetBytes(key string) []byte {
	if v, ok := p.Get(key); ok {
		if b, ok := v.([]byte); ok {
			dup := make([]byte, len(b))
			copy(dup, b)
			return dup
		}
	}
	return nil
}

// GetObject returns the nested property bag for key, or nil if absent or
// mistyped.
func (p *Properties) GetObject(key string) *Properties {
	if v, ok := p.Get(key); ok {
		if obj, ok := v.(*Properties); ok {
			return obj
		}
	}
	return nil
}

// Clone returns a deep copy. Byte slices and nested bags are duplicated so
// the copy shares no mutable state with the original.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}
	out := &Properties{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]any, len(p.values)),
	}
	copy(out.keys, p.keys)
	for k, v := range p.values {
		switch val := v.(type) {
		case []byte:
			dup := make([]byte, len(val))
			copy(dup, val)
			out.values[k] = dup
		case *Properties:
			out.values[k] = val.Clone()
		default:
			out.values[k] = val
		}
	}
	return out
}

// MarshalJSON writes the properties as a JSON object in insertion order.
// Byte values encode as base64 strings per encoding/json convention.
func (p *Properties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(p.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving its key order. Integral
// numbers decode as int64, everything else as float64. Nested objects decode
// as nested bags; arrays are not supported and are rejected.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties: expected JSON object, got %v", tok)
	}

	p.keys = nil
	p.values = make(map[string]any)
	return p.decodeObject(dec)
}

func (p *Properties) decodeObject(dec *json.Decoder) error {
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: non-string key %v", keyTok)
		}

		value, err := decodeValue(dec)
		if err != nil {
			return fmt.Errorf("properties: key %q: %w", key, err)
		}
		if err := p.Set(key, value); err != nil {
			return err
		}
	}
	// Consume closing brace.
	_, err := dec.Token()
	return err
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		if v == '{' {
			nested := NewProperties()
			if err := nested.decodeObject(dec); err != nil {
				return nil, err
			}
			return nested, nil
		}
		return nil, fmt.Errorf("unsupported JSON structure %q", v.String())
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return v.Float64()
	case string:
		return v, nil
	case bool:
		return v, nil
	case nil:
		return nil, fmt.Errorf("null values are not supported")
	default:
		return nil, fmt.Errorf("unsupported token %v", tok)
	}
}
