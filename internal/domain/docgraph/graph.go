package docgraph

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Document is the source document anchoring the chunk chain.
type Document struct {
	DocID         string `json:"doc_id"`
	Title         string `json:"title,omitempty"`
	Source        string `json:"source,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw struct {
		DocID         *string `json:"doc_id"`
		DocIDAlt      *string `json:"docId"`
		Title         *string `json:"title"`
		Source        *string `json:"source"`
		PublishedDate *string `json:"published_date"`
		PublishedAlt  *string `json:"publishedDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	*d = Document{
		DocID:         firstNonEmpty(raw.DocID, raw.DocIDAlt),
		Title:         firstNonEmpty(raw.Title),
		Source:        firstNonEmpty(raw.Source),
		PublishedDate: firstNonEmpty(raw.PublishedDate, raw.PublishedAlt),
	}
	return nil
}

// Chunk is an ordered text segment of a Document.
type Chunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Index      int    `json:"index"`
	DocumentID string `json:"document_id"`
}

// DocumentGraph is the unit of work handed to the exporter. It is never mutated
// by the store layer.
type DocumentGraph struct {
	Entities   []Entity       `json:"entities"`
	Relations  []Relation     `json:"relations"`
	Document   *Document      `json:"document,omitempty"`
	Chunks     []Chunk        `json:"chunks,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// LoadDocumentGraph decodes the JSON shape written by the extraction pipeline.
func LoadDocumentGraph(r io.Reader) (*DocumentGraph, error) {
	var g DocumentGraph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decode document graph: %w", err)
	}
	if g.DocumentID == "" && g.Document != nil {
		g.DocumentID = g.Document.DocID
	}
	return &g, nil
}

// EntityIDs is the set of ids present in the graph.
func (g *DocumentGraph) EntityIDs() map[string]bool {
	if g == nil {
		return nil
	}
	out := make(map[string]bool, len(g.Entities))
	for _, e := range g.Entities {
		if id := strings.TrimSpace(e.ID); id != "" {
			out[id] = true
		}
	}
	return out
}

// OrderedChunks returns a copy of Chunks sorted by Index.
func (g *DocumentGraph) OrderedChunks() []Chunk {
	if g == nil || len(g.Chunks) == 0 {
		return nil
	}
	out := make([]Chunk, len(g.Chunks))
	copy(out, g.Chunks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Validate lists problems without stopping at the first one. A non-empty result
// does not make the graph unusable; the exporter skips the offending items.
func (g *DocumentGraph) Validate() []error {
	if g == nil {
		return []error{fmt.Errorf("document graph is nil")}
	}
	var errs []error
	ids := g.EntityIDs()
	for i := range g.Entities {
		if err := g.Entities[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := range g.Relations {
		r := &g.Relations[i]
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if !ids[r.SourceEntityID] {
			errs = append(errs, fmt.Errorf("relation %q: unknown source entity %q", r.ID, r.SourceEntityID))
		}
		if !ids[r.TargetEntityID] {
			errs = append(errs, fmt.Errorf("relation %q: unknown target entity %q", r.ID, r.TargetEntityID))
		}
	}
	seenChunk := map[string]bool{}
	lastIndex := -1
	for _, c := range g.OrderedChunks() {
		if strings.TrimSpace(c.ID) == "" {
			errs = append(errs, fmt.Errorf("chunk at index %d: id is required", c.Index))
			continue
		}
		if seenChunk[c.ID] {
			errs = append(errs, fmt.Errorf("chunk %q: duplicate id", c.ID))
		}
		seenChunk[c.ID] = true
		if c.Index == lastIndex {
			errs = append(errs, fmt.Errorf("chunk %q: duplicate index %d", c.ID, c.Index))
		}
		lastIndex = c.Index
	}
	if g.Document != nil && strings.TrimSpace(g.Document.DocID) == "" {
		errs = append(errs, fmt.Errorf("document: doc_id is required"))
	}
	return errs
}

func firstNonEmpty(vals ...*string) string {
	for _, v := range vals {
		if v != nil && strings.TrimSpace(*v) != "" {
			return *v
		}
	}
	return ""
}
