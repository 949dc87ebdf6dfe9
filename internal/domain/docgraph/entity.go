package docgraph

import (
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entity is a typed node extracted from a document. Type is free text and only
// becomes a label at the store boundary.
type Entity struct {
	ID             string
	Name           string
	Type           string
	Description    string
	SourceChunkIDs []string
	Properties     *Properties
}

// Relation is a typed, directed edge between two entities of the same graph.
type Relation struct {
	ID             string
	SourceEntityID string
	TargetEntityID string
	RelationType   string
	Description    string
	Confidence     *float64
	Properties     *Properties
}

var entityCoreKeys = map[string]bool{
	"id":               true,
	"name":             true,
	"type":             true,
	"description":      true,
	"source_chunk_ids": true,
	"metadata":         true,
}

var relationCoreKeys = map[string]bool{
	"id":               true,
	"source_entity_id": true,
	"target_entity_id": true,
	"relation_type":    true,
	"description":      true,
	"confidence":       true,
	"metadata":         true,
}

// Validate reports the first missing required field.
func (e *Entity) Validate() error {
	if e == nil {
		return fmt.Errorf("entity is nil")
	}
	switch {
	case strings.TrimSpace(e.ID) == "":
		return fmt.Errorf("entity id is required")
	case strings.TrimSpace(e.Name) == "":
		return fmt.Errorf("entity %q: name is required", e.ID)
	case strings.TrimSpace(e.Type) == "":
		return fmt.Errorf("entity %q: type is required", e.ID)
	}
	return nil
}

// ChunkRefs returns SourceChunkIDs without blanks or repeats, first occurrence wins.
func (e *Entity) ChunkRefs() []string {
	if e == nil || len(e.SourceChunkIDs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(e.SourceChunkIDs))
	out := make([]string, 0, len(e.SourceChunkIDs))
	for _, id := range e.SourceChunkIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (r *Relation) Validate() error {
	if r == nil {
		return fmt.Errorf("relation is nil")
	}
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("relation id is required")
	case strings.TrimSpace(r.SourceEntityID) == "":
		return fmt.Errorf("relation %q: source_entity_id is required", r.ID)
	case strings.TrimSpace(r.TargetEntityID) == "":
		return fmt.Errorf("relation %q: target_entity_id is required", r.ID)
	case strings.TrimSpace(r.RelationType) == "":
		return fmt.Errorf("relation %q: relation_type is required", r.ID)
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("relation %q: confidence %v outside [0,1]", r.ID, *r.Confidence)
	}
	return nil
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, fields); err != nil {
		return fmt.Errorf("decode entity: %w", err)
	}
	out := Entity{Properties: NewProperties()}
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		key, raw := pair.Key, pair.Value
		var err error
		switch key {
		case "id":
			out.ID, err = decodeString(raw)
		case "name":
			out.Name, err = decodeString(raw)
		case "type":
			out.Type, err = decodeString(raw)
		case "description":
			out.Description, err = decodeString(raw)
		case "source_chunk_ids":
			out.SourceChunkIDs, err = decodeStrings(raw)
		case "metadata":
			err = foldMetadata(out.Properties, raw, entityCoreKeys)
		default:
			err = setExtra(out.Properties, key, raw)
		}
		if err != nil {
			return fmt.Errorf("decode entity field %q: %w", key, err)
		}
	}
	*e = out
	return nil
}

func (e Entity) MarshalJSON() ([]byte, error) {
	m := orderedmap.New[string, any]()
	m.Set("id", e.ID)
	m.Set("name", e.Name)
	m.Set("type", e.Type)
	if e.Description != "" {
		m.Set("description", e.Description)
	}
	if len(e.SourceChunkIDs) > 0 {
		m.Set("source_chunk_ids", e.SourceChunkIDs)
	}
	e.Properties.Each(func(k string, v any) bool {
		if !entityCoreKeys[k] {
			m.Set(k, v)
		}
		return true
	})
	return json.Marshal(m)
}

func (r *Relation) UnmarshalJSON(data []byte) error {
	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, fields); err != nil {
		return fmt.Errorf("decode relation: %w", err)
	}
	out := Relation{Properties: NewProperties()}
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		key, raw := pair.Key, pair.Value
		var err error
		switch key {
		case "id":
			out.ID, err = decodeString(raw)
		case "source_entity_id":
			out.SourceEntityID, err = decodeString(raw)
		case "target_entity_id":
			out.TargetEntityID, err = decodeString(raw)
		case "relation_type":
			out.RelationType, err = decodeString(raw)
		case "description":
			out.Description, err = decodeString(raw)
		case "confidence":
			out.Confidence, err = decodeFloatPtr(raw)
		case "metadata":
			err = foldMetadata(out.Properties, raw, relationCoreKeys)
		default:
			err = setExtra(out.Properties, key, raw)
		}
		if err != nil {
			return fmt.Errorf("decode relation field %q: %w", key, err)
		}
	}
	*r = out
	return nil
}

func (r Relation) MarshalJSON() ([]byte, error) {
	m := orderedmap.New[string, any]()
	m.Set("id", r.ID)
	m.Set("source_entity_id", r.SourceEntityID)
	m.Set("target_entity_id", r.TargetEntityID)
	m.Set("relation_type", r.RelationType)
	if r.Description != "" {
		m.Set("description", r.Description)
	}
	if r.Confidence != nil {
		m.Set("confidence", *r.Confidence)
	}
	r.Properties.Each(func(k string, v any) bool {
		if !relationCoreKeys[k] {
			m.Set(k, v)
		}
		return true
	})
	return json.Marshal(m)
}

func decodeString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeStrings(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeFloatPtr(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// foldMetadata merges a nested "metadata" object into the bag; core names are skipped.
func foldMetadata(dst *Properties, raw json.RawMessage, core map[string]bool) error {
	if isNull(raw) {
		return nil
	}
	meta := NewProperties()
	if err := meta.UnmarshalJSON(raw); err != nil {
		return err
	}
	meta.Each(func(k string, v any) bool {
		if !core[k] && v != nil {
			dst.Set(k, v)
		}
		return true
	})
	return nil
}

func setExtra(dst *Properties, key string, raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	v, err := decodeValue(raw)
	if err != nil {
		return err
	}
	dst.Set(key, v)
	return nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
