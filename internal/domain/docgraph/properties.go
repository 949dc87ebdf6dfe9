package docgraph

import (
	"bytes"
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties is the open-ended, insertion-ordered bag of extra values an LLM
// attached to an entity or relation. Keys are raw (unsanitized) names.
type Properties struct {
	m *orderedmap.OrderedMap[string, any]
}

func NewProperties() *Properties {
	return &Properties{m: orderedmap.New[string, any]()}
}

// PropertiesOf builds a bag from alternating key/value pairs.
func PropertiesOf(kv ...any) *Properties {
	p := NewProperties()
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		p.Set(k, kv[i+1])
	}
	return p
}

func (p *Properties) Set(key string, value any) {
	if p == nil {
		return
	}
	if p.m == nil {
		p.m = orderedmap.New[string, any]()
	}
	p.m.Set(key, value)
}

func (p *Properties) Get(key string) (any, bool) {
	if p == nil || p.m == nil {
		return nil, false
	}
	return p.m.Get(key)
}

func (p *Properties) Len() int {
	if p == nil || p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns keys in insertion order.
func (p *Properties) Keys() []string {
	if p.Len() == 0 {
		return nil
	}
	out := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Each visits entries in insertion order until fn returns false.
func (p *Properties) Each(fn func(key string, value any) bool) {
	if p.Len() == 0 {
		return
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

func (p *Properties) MarshalJSON() ([]byte, error) {
	if p == nil || p.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.m)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	raw := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, raw); err != nil {
		return err
	}
	p.m = orderedmap.New[string, any]()
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		v, err := decodeValue(pair.Value)
		if err != nil {
			return err
		}
		p.m.Set(pair.Key, v)
	}
	return nil
}

// decodeValue keeps integer/float distinction by decoding numbers as json.Number.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
