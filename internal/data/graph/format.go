package graph

import (
	"fmt"
	"strings"
)

// FormatContext renders matches and their neighborhood as plain text for a
// language model prompt.
func FormatContext(matches []Match, neighbors []Neighbor, includeScore bool) string {
	if len(matches) == 0 {
		return NoRelevantEntities
	}
	names := make(map[string]string, len(matches))
	lines := []string{"## Relevant entities (from vector search)"}
	for _, m := range matches {
		names[m.ID] = m.Name
		line := fmt.Sprintf("- %s (%s)", orUnknown(m.Name), orUnknown(m.Type))
		if m.Description != "" {
			line += ". " + m.Description
		}
		if includeScore {
			line += fmt.Sprintf(" [similarity: %.3f]", m.Score)
		}
		lines = append(lines, line)
	}

	if len(neighbors) > 0 {
		lines = append(lines, "", "## Relationships")
		for _, n := range neighbors {
			lines = append(lines, fmt.Sprintf("- %s --[%s]--> %s",
				displayName(names, n.StartID, n.StartName, n.StartType),
				n.Type,
				displayName(names, n.EndID, n.EndName, n.EndType),
			))
		}
	}
	return strings.Join(lines, "\n")
}

// displayName prefers the matched entity's name. Nodes outside the matches
// render as "name (type)", falling back to the id when unnamed.
func displayName(matched map[string]string, id, name, typ string) string {
	if m, ok := matched[id]; ok && m != "" {
		return m
	}
	out := name
	if out == "" {
		out = orUnknown(id)
	}
	if strings.TrimSpace(typ) != "" {
		out += " (" + typ + ")"
	}
	return out
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}
