package graph

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/graphstore/internal/embedding"
	"github.com/yungbote/graphstore/internal/observability"
	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

const (
	NoRelevantEntities = "No relevant entities found for this query."
	DefaultTopK        = 10
	MaxExpandHop       = 3
)

type RetrieveOptions struct {
	TopK         int
	ExpandHop    int
	IncludeScore bool
}

func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{TopK: DefaultTopK, ExpandHop: 1, IncludeScore: true}
}

// Match is one vector search hit.
type Match struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

// Neighbor is one relationship found while expanding around the matches.
type Neighbor struct {
	StartID   string `json:"start_id"`
	StartName string `json:"start_name,omitempty"`
	StartType string `json:"start_type,omitempty"`
	Type      string `json:"type"`
	EndID     string `json:"end_id"`
	EndName   string `json:"end_name,omitempty"`
	EndType   string `json:"end_type,omitempty"`
}

// Passage is a chunk returned by chunk search.
type Passage struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id,omitempty"`
	Index      int64   `json:"index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Retriever is read-only and safe for concurrent use.
type Retriever struct {
	sessions neo4jdb.Sessions
	embedder embedding.Provider
	log      *logger.Logger
}

func NewRetriever(sessions neo4jdb.Sessions, embedder embedding.Provider, log *logger.Logger) *Retriever {
	if log == nil {
		log = logger.Nop()
	}
	return &Retriever{sessions: sessions, embedder: embedder, log: log.With("service", "GraphRetriever")}
}

// Retrieve answers query with LLM-ready context text. A missing index yields
// an error matching ErrIndexUnavailable; an index with no hits yields NoRelevantEntities.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (out string, err error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.ExpandHop > MaxExpandHop {
		r.log.Debug("expand_hop capped", "requested", opts.ExpandHop, "max", MaxExpandHop)
		opts.ExpandHop = MaxExpandHop
	}
	ctx, span := observability.StartSpan(ctx, "graph.retrieve",
		attribute.Int("top_k", opts.TopK),
		attribute.Int("expand_hop", opts.ExpandHop),
	)
	defer func() { observability.EndSpan(span, err) }()

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return "", err
	}

	sess := r.sessions.OpenSession(ctx, neo4jdb.ReadAccess)
	defer sess.Close(ctx)

	matches, err := r.matchesWith(ctx, sess, vec, opts.TopK)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return NoRelevantEntities, nil
	}

	var neighbors []Neighbor
	if opts.ExpandHop >= 1 {
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		neighbors, err = r.expandWith(ctx, sess, ids, opts.ExpandHop)
		if err != nil {
			return "", err
		}
	}
	return FormatContext(matches, neighbors, opts.IncludeScore), nil
}

// SearchChunks runs the same similarity search against chunk text.
func (r *Retriever) SearchChunks(ctx context.Context, query string, topK int) (out []Passage, err error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	ctx, span := observability.StartSpan(ctx, "graph.search_chunks", attribute.Int("top_k", topK))
	defer func() { observability.EndSpan(span, err) }()

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	sess := r.sessions.OpenSession(ctx, neo4jdb.ReadAccess)
	defer sess.Close(ctx)

	stmt := queryChunkIndex(vec, topK)
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return nil, indexQueryErr(ChunkIndex, err)
	}
	for _, rec := range res.Records {
		p := Passage{
			ChunkID:    recString(rec.Get("id")),
			DocumentID: recString(rec.Get("document_id")),
			Text:       recString(rec.Get("text")),
		}
		idx, _ := rec.Get("index")
		p.Index = asInt64(idx)
		p.Score = recFloat(rec.Get("score"))
		out = append(out, p)
	}
	return out, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := embedding.CheckDimension(r.embedder, vec); err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

func (r *Retriever) matchesWith(ctx context.Context, sess neo4jdb.Session, vec []float32, topK int) ([]Match, error) {
	stmt := queryEntityIndex(vec, topK)
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return nil, indexQueryErr(EntityIndex, err)
	}
	seen := map[string]bool{}
	out := make([]Match, 0, len(res.Records))
	for _, rec := range res.Records {
		m := Match{
			ID:          recString(rec.Get("id")),
			Name:        recString(rec.Get("name")),
			Type:        recString(rec.Get("type")),
			Description: recString(rec.Get("description")),
			Score:       recFloat(rec.Get("score")),
		}
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out, nil
}

func (r *Retriever) expandWith(ctx context.Context, sess neo4jdb.Session, ids []string, hops int) ([]Neighbor, error) {
	stmt := expandNeighborhood(ids, hops)
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		return nil, fmt.Errorf("expand neighborhood: %w", err)
	}
	type key struct{ start, typ, end string }
	seen := map[key]bool{}
	var out []Neighbor
	for _, rec := range res.Records {
		n := Neighbor{
			StartID:   recString(rec.Get("start_id")),
			StartName: recString(rec.Get("start_name")),
			StartType: recString(rec.Get("start_type")),
			Type:      recString(rec.Get("rel_type")),
			EndID:     recString(rec.Get("end_id")),
			EndName:   recString(rec.Get("end_name")),
			EndType:   recString(rec.Get("end_type")),
		}
		if n.Type == "" {
			continue
		}
		k := key{n.StartID, n.Type, n.EndID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out, nil
}

func indexQueryErr(spec IndexSpec, err error) error {
	if neo4jdb.IsIndexNotFound(err) {
		return fmt.Errorf("query %s: %w", spec.Name.String(), ErrIndexUnavailable)
	}
	return fmt.Errorf("query %s: %w", spec.Name.String(), err)
}

func queryEntityIndex(vec []float32, k int) Statement {
	return newBuilder().
		raw("CALL db.index.vector.queryNodes(").bind("index_name", EntityIndex.Name.String()).
		raw(", ").bind("k", int64(k)).raw(", ").bind("query_vector", vec).raw(") YIELD node, score\n").
		raw("RETURN node.id AS id, node.name AS name, node.type AS type, node.description AS description, score\n").
		raw("ORDER BY score DESC").
		build()
}

func queryChunkIndex(vec []float32, k int) Statement {
	return newBuilder().
		raw("CALL db.index.vector.queryNodes(").bind("index_name", ChunkIndex.Name.String()).
		raw(", ").bind("k", int64(k)).raw(", ").bind("query_vector", vec).raw(") YIELD node, score\n").
		raw("RETURN node.id AS id, node.document_id AS document_id, node.index AS index, node.text AS text, score\n").
		raw("ORDER BY score DESC").
		build()
}

// expandNeighborhood walks up to hops relationships in either direction from
// every seed, staying off the document/chunk scaffolding.
func expandNeighborhood(ids []string, hops int) Statement {
	if hops < 1 {
		hops = 1
	}
	if hops > MaxExpandHop {
		hops = MaxExpandHop
	}
	return newBuilder().
		raw("UNWIND ").bind("ids", ids).raw(" AS seed\n").
		raw("MATCH (n:").ident(LabelEmbeddedEntity).raw(" {id: seed})\n").
		raw("MATCH p = (n)-[*1..").int(hops).raw("]-(m)\n").
		raw("WHERE NONE(x IN nodes(p) WHERE x:").ident(LabelChunk).raw(" OR x:").ident(LabelDocument).raw(")\n").
		raw("UNWIND relationships(p) AS r\n").
		raw("WITH DISTINCT r\n").
		raw("RETURN startNode(r).id AS start_id, startNode(r).name AS start_name, startNode(r).type AS start_type,\n").
		raw("       type(r) AS rel_type, endNode(r).id AS end_id, endNode(r).name AS end_name, endNode(r).type AS end_type").
		build()
}

func recString(v any, _ bool) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

func recFloat(v any, _ bool) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	case int64:
		return float64(f)
	default:
		return 0
	}
}
