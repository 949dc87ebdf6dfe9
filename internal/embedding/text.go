package embedding

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/graphstore/internal/domain"
)

var entityTextSkip = map[string]bool{
	"id":          true,
	"name":        true,
	"type":        true,
	"description": true,
	"metadata":    true,
}

// EntityText is the searchable text for an entity:
// "name | type | description | key: value ..." with scalar properties sorted by key.
func EntityText(e *domain.Entity) string {
	if e == nil {
		return ""
	}
	parts := []string{e.Name, e.Type}
	if strings.TrimSpace(e.Description) != "" {
		parts = append(parts, e.Description)
	}
	var keys []string
	vals := map[string]string{}
	e.Properties.Each(func(k string, v any) bool {
		if entityTextSkip[k] {
			return true
		}
		if s, ok := scalarText(v); ok {
			if _, dup := vals[k]; !dup {
				keys = append(keys, k)
			}
			vals[k] = s
		}
		return true
	})
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+vals[k])
	}
	return strings.Join(parts, " | ")
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}
