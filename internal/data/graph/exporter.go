package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/graphstore/internal/domain"
	"github.com/yungbote/graphstore/internal/embedding"
	"github.com/yungbote/graphstore/internal/observability"
	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

type ExportOptions struct {
	ClearExisting   bool `json:"clear_existing"`
	MergeDuplicates bool `json:"merge_duplicates"`
	Embed           bool `json:"embed"`

	// RunID is used for the summary when set; otherwise a fresh one is generated.
	RunID uuid.UUID `json:"-"`
}

// ExportSummary is the end-of-run report. A non-empty Errors list is not a failure.
type ExportSummary struct {
	RunID            uuid.UUID `json:"run_id"`
	DocumentID       string    `json:"document_id,omitempty"`
	EntitiesCreated  int       `json:"entities_created"`
	EntitiesUpdated  int       `json:"entities_updated"`
	RelationsCreated int       `json:"relations_created"`
	RelationsUpdated int       `json:"relations_updated"`
	ChunksWritten    int       `json:"chunks_written"`
	MentionsCreated  int       `json:"mentions_created"`
	EntitiesEmbedded int       `json:"entities_embedded"`
	ChunksEmbedded   int       `json:"chunks_embedded"`
	IndexReady       bool      `json:"index_ready"`
	Errors           []string  `json:"errors"`
	Warnings         []string  `json:"warnings"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`

	itemErrors []*ItemError
}

// ItemErrors returns the typed form of Errors.
func (s *ExportSummary) ItemErrors() []*ItemError {
	if s == nil {
		return nil
	}
	return s.itemErrors
}

func (s *ExportSummary) record(err *ItemError) {
	s.itemErrors = append(s.itemErrors, err)
	s.Errors = append(s.Errors, err.Error())
}

func (s *ExportSummary) warn(err error) {
	s.Warnings = append(s.Warnings, err.Error())
}

type Exporter struct {
	sessions neo4jdb.Sessions
	embedder embedding.Provider
	indexes  *IndexManager
	log      *logger.Logger
	now      func() time.Time
}

// NewExporter builds an exporter. embedder may be nil when Embed is never requested.
func NewExporter(sessions neo4jdb.Sessions, embedder embedding.Provider, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{
		sessions: sessions,
		embedder: embedder,
		indexes:  NewIndexManager(sessions, log),
		log:      log.With("service", "GraphExporter"),
		now:      time.Now,
	}
}

// Export writes g into the store item by item. Only connectivity failures and
// context cancellation return an error; the summary is returned either way.
func (x *Exporter) Export(ctx context.Context, g *domain.DocumentGraph, opts ExportOptions) (summary *ExportSummary, err error) {
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	summary = &ExportSummary{
		RunID:     runID,
		StartedAt: x.now().UTC(),
		Errors:    []string{},
		Warnings:  []string{},
	}
	if g == nil {
		summary.FinishedAt = x.now().UTC()
		return summary, fmt.Errorf("document graph is nil")
	}
	if opts.Embed && x.embedder == nil {
		summary.FinishedAt = x.now().UTC()
		return summary, ErrNoEmbedder
	}
	summary.DocumentID = g.DocumentID
	if summary.DocumentID == "" && g.Document != nil {
		summary.DocumentID = g.Document.DocID
	}

	ctx, span := observability.StartSpan(ctx, "graph.export",
		attribute.String("run_id", summary.RunID.String()),
		attribute.Int("entities", len(g.Entities)),
		attribute.Int("relations", len(g.Relations)),
		attribute.Int("chunks", len(g.Chunks)),
		attribute.Bool("clear_existing", opts.ClearExisting),
		attribute.Bool("merge_duplicates", opts.MergeDuplicates),
		attribute.Bool("embed", opts.Embed),
	)
	defer func() {
		summary.FinishedAt = x.now().UTC()
		observability.EndSpan(span, err)
	}()

	log := x.log.With("run_id", summary.RunID.String(), "document_id", summary.DocumentID)
	now := summary.StartedAt.Format(time.RFC3339Nano)

	sess := x.sessions.OpenSession(ctx, neo4jdb.WriteAccess)
	defer sess.Close(ctx)

	if opts.ClearExisting {
		if err := x.reset(ctx, sess, opts, summary, log); err != nil {
			return summary, err
		}
	}
	if err := x.writeChunks(ctx, sess, g, opts, now, summary, log); err != nil {
		return summary, err
	}
	written, err := x.writeEntities(ctx, sess, g, opts, now, summary, log)
	if err != nil {
		return summary, err
	}
	if err := x.writeRelations(ctx, sess, g, opts, now, summary, log); err != nil {
		return summary, err
	}
	if err := x.writeMentions(ctx, sess, g, written, now, summary, log); err != nil {
		return summary, err
	}
	if opts.Embed {
		if err := x.ensureIndexes(ctx, sess, summary, log); err != nil {
			return summary, err
		}
	}

	log.Info("graph export finished",
		"entities_created", summary.EntitiesCreated,
		"entities_updated", summary.EntitiesUpdated,
		"relations_created", summary.RelationsCreated,
		"relations_updated", summary.RelationsUpdated,
		"chunks_written", summary.ChunksWritten,
		"errors", len(summary.Errors),
		"warnings", len(summary.Warnings),
	)
	return summary, nil
}

func (x *Exporter) reset(ctx context.Context, sess neo4jdb.Session, opts ExportOptions, summary *ExportSummary, log *logger.Logger) error {
	stmt := clearAll()
	res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
	if err != nil {
		if neo4jdb.IsFatal(err) {
			return err
		}
		x.recordItem(summary, log, &ItemError{Kind: ItemErrorWrite, ItemKind: "graph", ItemID: "*", Err: fmt.Errorf("clear existing: %w", err)})
	} else {
		log.Info("cleared existing graph", "nodes_deleted", res.Counters.NodesDeleted)
	}
	if opts.Embed {
		return nil
	}
	// Without embeddings this run, a surviving index would describe vectors that no longer exist.
	for _, spec := range []IndexSpec{EntityIndex, ChunkIndex} {
		if err := x.indexes.dropWith(ctx, sess, spec); err != nil {
			if neo4jdb.IsFatal(err) {
				return err
			}
			log.Warn("vector index drop failed (continuing)", "index", spec.Name.String(), "error", err)
			summary.warn(err)
		}
	}
	return nil
}

func (x *Exporter) writeChunks(ctx context.Context, sess neo4jdb.Session, g *domain.DocumentGraph, opts ExportOptions, now string, summary *ExportSummary, log *logger.Logger) error {
	docID := ""
	if g.Document != nil && strings.TrimSpace(g.Document.DocID) != "" {
		docID = g.Document.DocID
		stmt := documentUpsert(g.Document, now)
		if _, err := sess.Run(ctx, stmt.Cypher, stmt.Params); err != nil {
			if neo4jdb.IsFatal(err) {
				return err
			}
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorWrite, ItemKind: "document", ItemID: docID, Err: err})
			docID = ""
		}
	} else if g.Document != nil {
		x.recordItem(summary, log, &ItemError{Kind: ItemErrorValidation, ItemKind: "document", Err: fmt.Errorf("doc_id is required")})
	}

	documentID := docID
	if documentID == "" {
		documentID = g.DocumentID
	}

	var prev string
	seen := map[string]bool{}
	for _, c := range g.OrderedChunks() {
		c := c
		if strings.TrimSpace(c.ID) == "" {
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorValidation, ItemKind: "chunk", ItemID: fmt.Sprintf("#%d", c.Index), Err: fmt.Errorf("id is required")})
			continue
		}
		if seen[c.ID] {
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorValidation, ItemKind: "chunk", ItemID: c.ID, Err: fmt.Errorf("duplicate chunk id")})
			continue
		}
		seen[c.ID] = true

		var vec []float32
		if opts.Embed {
			v, ierr, err := x.embed(ctx, c.Text, "chunk", c.ID)
			if err != nil {
				return err
			}
			if ierr != nil {
				x.recordItem(summary, log, ierr)
				continue
			}
			vec = v
		}

		chunkDocID := c.DocumentID
		if chunkDocID == "" {
			chunkDocID = documentID
		}
		stmt := chunkUpsert(&c, chunkDocID, vec, now)
		if _, err := sess.Run(ctx, stmt.Cypher, stmt.Params); err != nil {
			if neo4jdb.IsFatal(err) {
				return err
			}
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorWrite, ItemKind: "chunk", ItemID: c.ID, Err: err})
			continue
		}
		summary.ChunksWritten++
		if vec != nil {
			summary.ChunksEmbedded++
		}

		var links []Statement
		if docID != "" {
			if prev == "" {
				links = append(links, linkEdge(documentEndpoint(docID), chunkEndpoint(c.ID), RelFirstChunk, now))
			}
			links = append(links, linkEdge(chunkEndpoint(c.ID), documentEndpoint(docID), RelPartOf, now))
		}
		if prev != "" {
			links = append(links, linkEdge(chunkEndpoint(prev), chunkEndpoint(c.ID), RelNextChunk, now))
		}
		for _, link := range links {
			if _, err := sess.Run(ctx, link.Cypher, link.Params); err != nil {
				if neo4jdb.IsFatal(err) {
					return err
				}
				x.recordItem(summary, log, &ItemError{Kind: ItemErrorWrite, ItemKind: "chunk", ItemID: c.ID, Err: fmt.Errorf("link: %w", err)})
			}
		}
		prev = c.ID
	}
	return nil
}

// writeEntities returns the ids written by this run.
func (x *Exporter) writeEntities(ctx context.Context, sess neo4jdb.Session, g *domain.DocumentGraph, opts ExportOptions, now string, summary *ExportSummary, log *logger.Logger) (map[string]bool, error) {
	written := map[string]bool{}
	for i := range g.Entities {
		e := &g.Entities[i]
		if err := e.Validate(); err != nil {
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorValidation, ItemKind: "entity", ItemID: e.ID, Err: err})
			continue
		}

		var vec []float32
		if opts.Embed {
			v, ierr, err := x.embed(ctx, embedding.EntityText(e), "entity", e.ID)
			if err != nil {
				return written, err
			}
			if ierr != nil {
				x.recordItem(summary, log, ierr)
				continue
			}
			vec = v
		}

		props := x.coerce(e.Properties, "entity", e.ID, summary, log)
		stmt := entityUpsert(e, LabelIdent(e.Type), props, vec, opts.MergeDuplicates, now)
		res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
		if err != nil {
			if neo4jdb.IsFatal(err) {
				return written, err
			}
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorWrite, ItemKind: "entity", ItemID: e.ID, Err: err})
			continue
		}
		if !opts.MergeDuplicates || res.Counters.NodesCreated > 0 {
			summary.EntitiesCreated++
		} else {
			summary.EntitiesUpdated++
		}
		if vec != nil {
			summary.EntitiesEmbedded++
		}
		written[e.ID] = true
	}
	return written, nil
}

func (x *Exporter) writeRelations(ctx context.Context, sess neo4jdb.Session, g *domain.DocumentGraph, opts ExportOptions, now string, summary *ExportSummary, log *logger.Logger) error {
	ids := g.EntityIDs()
	for i := range g.Relations {
		r := &g.Relations[i]
		if err := r.Validate(); err != nil {
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorValidation, ItemKind: "relation", ItemID: r.ID, Err: err})
			continue
		}
		var missing []string
		if !ids[r.SourceEntityID] {
			missing = append(missing, "source "+r.SourceEntityID)
		}
		if !ids[r.TargetEntityID] {
			missing = append(missing, "target "+r.TargetEntityID)
		}
		if len(missing) > 0 {
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorEndpointNotFound, ItemKind: "relation", ItemID: r.ID,
				Err: fmt.Errorf("unknown %s", strings.Join(missing, ", "))})
			continue
		}

		props := x.coerce(r.Properties, "relation", r.ID, summary, log)
		stmt := relationUpsert(r, RelTypeIdent(r.RelationType), props, opts.MergeDuplicates, now)
		res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
		if err != nil {
			if neo4jdb.IsFatal(err) {
				return err
			}
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorWrite, ItemKind: "relation", ItemID: r.ID, Err: err})
			continue
		}
		if len(res.Records) == 0 {
			x.recordItem(summary, log, &ItemError{Kind: ItemErrorEndpointNotFound, ItemKind: "relation", ItemID: r.ID,
				Err: fmt.Errorf("endpoints %s -> %s not found in store", r.SourceEntityID, r.TargetEntityID)})
			continue
		}
		if !opts.MergeDuplicates || res.Counters.RelationshipsCreated > 0 {
			summary.RelationsCreated++
		} else {
			summary.RelationsUpdated++
		}
	}
	return nil
}

func (x *Exporter) writeMentions(ctx context.Context, sess neo4jdb.Session, g *domain.DocumentGraph, written map[string]bool, now string, summary *ExportSummary, log *logger.Logger) error {
	for i := range g.Entities {
		e := &g.Entities[i]
		if !written[e.ID] {
			continue
		}
		for _, chunkID := range e.ChunkRefs() {
			stmt := linkEdge(entityEndpoint(e.ID), chunkEndpoint(chunkID), RelMentionedIn, now)
			res, err := sess.Run(ctx, stmt.Cypher, stmt.Params)
			if err != nil {
				if neo4jdb.IsFatal(err) {
					return err
				}
				x.recordItem(summary, log, &ItemError{Kind: ItemErrorWrite, ItemKind: "mention", ItemID: e.ID + "->" + chunkID, Err: err})
				continue
			}
			if len(res.Records) == 0 {
				x.recordItem(summary, log, &ItemError{Kind: ItemErrorEndpointNotFound, ItemKind: "mention", ItemID: e.ID + "->" + chunkID,
					Err: fmt.Errorf("chunk %s not found", chunkID)})
				continue
			}
			summary.MentionsCreated += res.Counters.RelationshipsCreated
		}
	}
	return nil
}

func (x *Exporter) ensureIndexes(ctx context.Context, sess neo4jdb.Session, summary *ExportSummary, log *logger.Logger) error {
	dim := x.embedder.Dimension()
	specs := []IndexSpec{EntityIndex}
	if summary.ChunksEmbedded > 0 {
		specs = append(specs, ChunkIndex)
	}
	summary.IndexReady = true
	for _, spec := range specs {
		if err := x.indexes.ensureWith(ctx, sess, spec, dim); err != nil {
			if neo4jdb.IsFatal(err) {
				return err
			}
			log.Warn("vector index creation failed (import kept)", "index", spec.Name.String(), "error", err)
			summary.warn(err)
			if spec == EntityIndex {
				summary.IndexReady = false
			}
		}
	}
	return nil
}

// coerce logs key collisions and turns unencodable values into summary warnings.
func (x *Exporter) coerce(bag *domain.Properties, itemKind, itemID string, summary *ExportSummary, log *logger.Logger) []Property {
	props, collisions, rejected := CoerceProperties(bag)
	for _, c := range collisions {
		log.Warn("property keys collide after sanitizing; later value wins",
			"item", itemKind, "item_id", itemID, "key", c.Key, "dropped", c.Dropped, "kept", c.Kept)
	}
	for _, r := range rejected {
		log.Warn("property value not encodable; dropped", "item", itemKind, "item_id", itemID, "key", r.Key, "error", r.Err)
		summary.warn(fmt.Errorf("%s %s: %w", itemKind, itemID, r))
	}
	return props
}

// embed returns a per-item error for provider or dimension failures, and a
// plain error only when the caller must abort.
func (x *Exporter) embed(ctx context.Context, text, itemKind, itemID string) ([]float32, *ItemError, error) {
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, &ItemError{Kind: ItemErrorEmbedding, ItemKind: itemKind, ItemID: itemID, Err: err}, nil
	}
	if err := embedding.CheckDimension(x.embedder, vec); err != nil {
		return nil, &ItemError{Kind: ItemErrorEmbeddingDimension, ItemKind: itemKind, ItemID: itemID, Err: err}, nil
	}
	return vec, nil, nil
}

func (x *Exporter) recordItem(summary *ExportSummary, log *logger.Logger, err *ItemError) {
	log.Warn("graph item skipped", "kind", string(err.Kind), "item", err.ItemKind, "item_id", err.ItemID, "error", err.Err)
	summary.record(err)
}

