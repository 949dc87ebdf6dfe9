package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/yungbote/graphstore/internal/domain"
)

// Property is a coerced key/value pair ready to be written.
type Property struct {
	Key   Ident
	Value any
}

// Collision records two raw keys that sanitized to the same identifier.
type Collision struct {
	Key     string
	Dropped string
	Kept    string
}

// Rejection is a value that could not be converted and was left out.
type Rejection struct {
	Key string
	Err error
}

func (r Rejection) Error() string {
	return fmt.Sprintf("property %q dropped: %v", r.Key, r.Err)
}

func (r Rejection) Unwrap() error { return r.Err }

// Keys owned by the engine. User properties that sanitize onto one of these are dropped.
var reservedKeys = map[string]bool{
	"id":               true,
	"name":             true,
	"type":             true,
	"description":      true,
	"source_entity_id": true,
	"target_entity_id": true,
	"relation_type":    true,
	"confidence":       true,
	"embedding":        true,
	"created_at":       true,
	"updated_at":       true,
	"created_by":       true,
	"source_chunk_ids": true,
	"metadata":         true,
}

// CoerceProperties flattens a bag into store-native values. Scalars pass
// through (numbers normalized to int64 or float64), homogeneous scalar lists
// become typed slices, and anything else becomes JSON text. Nil values and
// reserved keys are skipped. When two keys sanitize to the same identifier
// the later value wins at the earlier position. Values that cannot be
// encoded at all come back as rejections.
func CoerceProperties(bag *domain.Properties) ([]Property, []Collision, []Rejection) {
	if bag.Len() == 0 {
		return nil, nil, nil
	}
	var (
		out        []Property
		collisions []Collision
		rejected   []Rejection
	)
	pos := map[string]int{}
	raws := map[string]string{}
	bag.Each(func(rawKey string, v any) bool {
		if reservedKeys[rawKey] || v == nil {
			return true
		}
		key := PropertyIdent(rawKey)
		if reservedKeys[key.String()] {
			return true
		}
		val, err := coerceValue(v)
		if err != nil {
			rejected = append(rejected, Rejection{Key: rawKey, Err: err})
			return true
		}
		if val == nil {
			return true
		}
		if i, seen := pos[key.String()]; seen {
			collisions = append(collisions, Collision{Key: key.String(), Dropped: raws[key.String()], Kept: rawKey})
			out[i].Value = val
			raws[key.String()] = rawKey
			return true
		}
		pos[key.String()] = len(out)
		raws[key.String()] = rawKey
		out = append(out, Property{Key: key, Value: val})
		return true
	})
	return out, collisions, rejected
}

// coerceValue returns nil, nil for values that encode to JSON null.
func coerceValue(v any) (any, error) {
	if s, ok := coerceScalar(v); ok {
		return s, nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []int64:
		return append([]int64(nil), t...), nil
	case []float64:
		return append([]float64(nil), t...), nil
	case []bool:
		return append([]bool(nil), t...), nil
	case []any:
		if list, ok := coerceList(t); ok {
			return list, nil
		}
		return jsonText(t)
	case map[string]any, *domain.Properties:
		return jsonText(t)
	}
	// Anything else (typed slices, structs, time values) is normalized through JSON.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	decoded, err := decodeJSON(raw)
	if err != nil {
		return nil, err
	}
	if decoded == nil {
		return nil, nil
	}
	return coerceValue(decoded)
}

func coerceScalar(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return t, true
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return f, true
		}
		return t.String(), true
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return uintValue(uint64(t)), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return uintValue(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return nil, false
}

func uintValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// coerceList returns a typed slice when every element is the same scalar kind.
// Mixed integers and floats count as one numeric kind.
func coerceList(items []any) (any, bool) {
	if len(items) == 0 {
		return []string{}, true
	}
	var (
		strs    []string
		bools   []bool
		ints    []int64
		floats  []float64
		allInts = true
		kind    string
	)
	for _, item := range items {
		s, ok := coerceScalar(item)
		if !ok {
			return nil, false
		}
		var k string
		switch x := s.(type) {
		case string:
			k = "string"
			strs = append(strs, x)
		case bool:
			k = "bool"
			bools = append(bools, x)
		case int64:
			k = "number"
			ints = append(ints, x)
			floats = append(floats, float64(x))
		case float64:
			k = "number"
			allInts = false
			floats = append(floats, x)
		}
		if kind == "" {
			kind = k
		} else if kind != k {
			return nil, false
		}
	}
	switch kind {
	case "string":
		return strs, true
	case "bool":
		return bools, true
	default:
		if allInts {
			return ints, true
		}
		return floats, true
	}
}

func jsonText(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
