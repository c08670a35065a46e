package model

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// Payload is the context a trigger carries: a flat mapping from dot-path
// field names (e.g. "aiScore", "candidate.name") to typed values. Conditions
// and action templates are resolved against it.
type Payload map[string]Value

// Lookup resolves a field. Missing fields resolve to the absent Value.
func (p Payload) Lookup(field string) Value {
	if p == nil {
		return Value{}
	}
	return p[field]
}

// Set stores a field, ignoring values that cannot be represented.
func (p Payload) Set(field string, x any) {
	if v, ok := ValueOf(x); ok {
		p[field] = v
	}
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p overlaid with the fields of other.
func (p Payload) Merge(other Payload) Payload {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Native converts the payload into a plain map for persistence and logging.
func (p Payload) Native() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Native()
	}
	return out
}

// PayloadFromMap builds a Payload from decoded data. Nested objects are
// flattened into dot-path keys; values outside the variant set are dropped.
func PayloadFromMap(data map[string]any) Payload {
	p := make(Payload, len(data))
	flattenMap(p, "", data)
	return p
}

func flattenMap(p Payload, prefix string, data map[string]any) {
	for k, raw := range data {
		key := joinPath(prefix, k)
		if nested, ok := raw.(map[string]any); ok {
			flattenMap(p, key, nested)
			continue
		}
		p.Set(key, raw)
	}
}

// PayloadFromJSON parses a raw JSON object into a flattened Payload.
func PayloadFromJSON(raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("payload: invalid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("payload: expected a JSON object, got %s", root.Type)
	}
	p := make(Payload)
	flattenJSON(p, "", root)
	return p, nil
}

func flattenJSON(p Payload, prefix string, obj gjson.Result) {
	obj.ForEach(func(key, val gjson.Result) bool {
		path := joinPath(prefix, key.String())
		if val.IsObject() {
			flattenJSON(p, path, val)
			return true
		}
		if v, ok := jsonValue(val); ok {
			p[path] = v
		}
		return true
	})
}

func jsonValue(r gjson.Result) (Value, bool) {
	switch r.Type {
	case gjson.Number:
		return Number(r.Num), true
	case gjson.String:
		return String(r.Str), true
	case gjson.True:
		return Bool(true), true
	case gjson.False:
		return Bool(false), true
	case gjson.JSON:
		if !r.IsArray() {
			return Value{}, false
		}
		var items []Value
		for _, el := range r.Array() {
			if v, ok := jsonValue(el); ok {
				items = append(items, v)
			}
		}
		return List(items...), true
	default:
		return Value{}, false
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
