package types

import (
	"encoding/json"
	"strings"
)

// RawObj reads loosely shaped peer JSON by dotted key.
type RawObj struct {
	data map[string]any
}

func LoadAsRawObj(body []byte) (*RawObj, error) {
	var data map[string]any
	err := json.Unmarshal(body, &data)
	if data == nil {
		data = map[string]any{}
	}
	return &RawObj{data}, err
}

func NewRawObj(data map[string]any) *RawObj {
	if data == nil {
		data = map[string]any{}
	}
	return &RawObj{data}
}

func (r *RawObj) GetData() map[string]any {
	return r.data
}

func (r *RawObj) get(key string) (any, bool) {
	var value any = r.data
	for _, k := range strings.Split(key, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

func (r *RawObj) Has(key string) bool {
	_, ok := r.get(key)
	return ok
}

func (r *RawObj) GetRaw(key string) (*RawObj, bool) {
	value, ok := r.get(key)
	if !ok {
		return nil, false
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	return &RawObj{m}, true
}

func (r *RawObj) GetString(key string) (string, bool) {
	value, ok := r.get(key)
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

func (r *RawObj) MustGetString(key string) string {
	str, _ := r.GetString(key)
	return str
}

// GetList returns the array at key as objects, skipping non-object elements.
func (r *RawObj) GetList(key string) []*RawObj {
	value, ok := r.get(key)
	if !ok {
		return nil
	}
	arr, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]*RawObj, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			out = append(out, &RawObj{m})
		}
	}
	return out
}

func (r *RawObj) Set(key string, value any) {
	r.data[key] = value
}

// Rename moves the value under from to to.
func (r *RawObj) Rename(from, to string) {
	if v, ok := r.data[from]; ok {
		delete(r.data, from)
		r.data[to] = v
	}
}

// Decode re-marshals the object into v.
func (r *RawObj) Decode(v any) error {
	b, err := json.Marshal(r.data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (r *RawObj) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.data)
}
