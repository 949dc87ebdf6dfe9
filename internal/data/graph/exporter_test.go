package graph

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/graphstore/internal/data/graph/graphtest"
	"github.com/yungbote/graphstore/internal/domain"
	"github.com/yungbote/graphstore/internal/embedding"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

const testDim = 64

func acmeGraph() *domain.DocumentGraph {
	conf := 0.9
	return &domain.DocumentGraph{
		DocumentID: "doc-1",
		Document:   &domain.Document{DocID: "doc-1", Title: "Acme staff"},
		Chunks: []domain.Chunk{
			{ID: "c1", Text: "Jane Doe works at Acme.", Index: 1},
			{ID: "c0", Text: "Acme Corp builds rockets.", Index: 0},
		},
		Entities: []domain.Entity{
			{ID: "e1", Name: "Acme Corp", Type: "ORGANIZATION", Description: "Rocket maker",
				SourceChunkIDs: []string{"c0"}, Properties: domain.PropertiesOf("founded", 1999)},
			{ID: "e2", Name: "Jane Doe", Type: "PERSON", SourceChunkIDs: []string{"c1"}},
		},
		Relations: []domain.Relation{
			{ID: "r1", SourceEntityID: "e1", TargetEntityID: "e2", RelationType: "EMPLOYS",
				Confidence: &conf, Properties: domain.PropertiesOf("role", "CEO")},
		},
	}
}

func newTestExporter(store *graphtest.Store, p embedding.Provider) *Exporter {
	return NewExporter(store, p, nil)
}

func kinds(s *ExportSummary) []ItemErrorKind {
	var out []ItemErrorKind
	for _, e := range s.ItemErrors() {
		out = append(out, e.Kind)
	}
	return out
}

func TestExportThenRetrieveAcme(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	hash := embedding.NewHashProvider(testDim)

	sum, err := newTestExporter(store, hash).Export(ctx, acmeGraph(), ExportOptions{ClearExisting: true, MergeDuplicates: true, Embed: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.EntitiesCreated != 2 || sum.RelationsCreated != 1 || len(sum.Errors) != 0 {
		t.Fatalf("summary: entities=%d relations=%d errors=%v", sum.EntitiesCreated, sum.RelationsCreated, sum.Errors)
	}
	if sum.ChunksWritten != 2 || sum.MentionsCreated != 2 || !sum.IndexReady {
		t.Fatalf("summary: chunks=%d mentions=%d index_ready=%v", sum.ChunksWritten, sum.MentionsCreated, sum.IndexReady)
	}
	if sum.DocumentID != "doc-1" || sum.FinishedAt.Before(sum.StartedAt) {
		t.Fatalf("summary: document=%q started=%v finished=%v", sum.DocumentID, sum.StartedAt, sum.FinishedAt)
	}
	if n := len(store.Rels("FIRST_CHUNK")); n != 1 {
		t.Fatalf("FIRST_CHUNK: want=1 got=%d", n)
	}
	next := store.Rels("NEXT_CHUNK")
	if len(next) != 1 {
		t.Fatalf("NEXT_CHUNK: want=1 got=%d", len(next))
	}
	if a, b := store.Endpoints(next[0]); a.Props["id"] != "c0" || b.Props["id"] != "c1" {
		t.Fatalf("NEXT_CHUNK direction: %v -> %v", a.Props["id"], b.Props["id"])
	}
	acme := store.NodeByID("e1")
	if acme == nil || !acme.HasLabel("ORGANIZATION") || !acme.HasLabel("EmbeddedEntity") {
		t.Fatalf("acme node: %+v", acme)
	}
	if acme.Props["founded"] != int64(1999) || acme.Props["created_by"] != Provenance {
		t.Fatalf("acme props: %v", acme.Props)
	}
	if idx, ok := store.Index(EntityIndex.Name.String()); !ok || idx.Dimensions != testDim || idx.Similarity != "cosine" {
		t.Fatalf("entity index: %+v ok=%v", idx, ok)
	}

	out, err := NewRetriever(store, hash, nil).Retrieve(ctx, "Acme", RetrieveOptions{TopK: 1, ExpandHop: 1, IncludeScore: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.HasPrefix(out, "## Relevant entities (from vector search)\n- Acme Corp (ORGANIZATION). Rocket maker [similarity: ") {
		t.Fatalf("Retrieve header: got=%q", out)
	}
	if !strings.Contains(out, "## Relationships\n- Acme Corp --[EMPLOYS]--> Jane Doe (PERSON)") {
		t.Fatalf("Retrieve relationships: got=%q", out)
	}
	if strings.Contains(out, "MENTIONED_IN") || strings.Contains(out, "\n- Jane Doe (PERSON)") {
		t.Fatalf("Retrieve leaked scaffolding or extra match: got=%q", out)
	}
	if n := store.OpenSessions(); n != 0 {
		t.Fatalf("sessions left open: %d", n)
	}
}

func TestExportMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	x := newTestExporter(store, nil)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	x.now = func() time.Time { return t1 }
	if _, err := x.Export(ctx, acmeGraph(), ExportOptions{MergeDuplicates: true}); err != nil {
		t.Fatalf("first Export: %v", err)
	}
	x.now = func() time.Time { return t2 }
	sum, err := x.Export(ctx, acmeGraph(), ExportOptions{MergeDuplicates: true})
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if sum.EntitiesCreated != 0 || sum.EntitiesUpdated != 2 || sum.RelationsCreated != 0 || sum.RelationsUpdated != 1 {
		t.Fatalf("second summary: %+v", sum)
	}
	counts := map[string]int{"ORGANIZATION": 1, "PERSON": 1, "Chunk": 2, "Document": 1}
	for label, want := range counts {
		if got := len(store.Nodes(label)); got != want {
			t.Fatalf("nodes %s: want=%d got=%d", label, want, got)
		}
	}
	for relType, want := range map[string]int{"EMPLOYS": 1, "MENTIONED_IN": 2, "PART_OF": 2, "NEXT_CHUNK": 1} {
		if got := len(store.Rels(relType)); got != want {
			t.Fatalf("rels %s: want=%d got=%d", relType, want, got)
		}
	}
	acme := store.NodeByID("e1")
	if acme.Props["created_at"] != t1.Format(time.RFC3339Nano) || acme.Props["updated_at"] != t2.Format(time.RFC3339Nano) {
		t.Fatalf("timestamps: created=%v updated=%v", acme.Props["created_at"], acme.Props["updated_at"])
	}
}

func TestExportWithoutMergeDuplicates(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	x := newTestExporter(store, nil)
	g := acmeGraph()
	g.Relations = nil
	for i := 0; i < 2; i++ {
		sum, err := x.Export(ctx, g, ExportOptions{})
		if err != nil {
			t.Fatalf("Export %d: %v", i, err)
		}
		if sum.EntitiesCreated != 2 || sum.EntitiesUpdated != 0 {
			t.Fatalf("Export %d: %+v", i, sum)
		}
	}
	if got := len(store.Nodes("ORGANIZATION")); got != 2 {
		t.Fatalf("duplicate nodes: want=2 got=%d", got)
	}
}

func TestExportSkipsBrokenItems(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	g := acmeGraph()
	g.Entities = append(g.Entities,
		domain.Entity{ID: "e3", Type: "PERSON"},
		domain.Entity{ID: "e4", Name: "Ghost Writer", Type: "PERSON", SourceChunkIDs: []string{"c9"}},
	)
	g.Relations = append(g.Relations,
		domain.Relation{ID: "r2", SourceEntityID: "e1", TargetEntityID: "nobody", RelationType: "KNOWS"},
		domain.Relation{ID: "r3", SourceEntityID: "e1", TargetEntityID: "e3", RelationType: "KNOWS"},
		domain.Relation{ID: "r4", SourceEntityID: "e1", TargetEntityID: "e2"},
	)

	sum, err := newTestExporter(store, nil).Export(ctx, g, ExportOptions{MergeDuplicates: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := []ItemErrorKind{
		ItemErrorValidation,       // e3 has no name
		ItemErrorEndpointNotFound, // r2 target not in graph
		ItemErrorEndpointNotFound, // r3 target never written
		ItemErrorValidation,       // r4 has no type
		ItemErrorEndpointNotFound, // e4 mentions a missing chunk
	}
	got := kinds(sum)
	if len(got) != len(want) {
		t.Fatalf("errors: want=%v got=%v (%v)", want, got, sum.Errors)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("error %d: want=%s got=%s (%v)", i, want[i], got[i], sum.Errors)
		}
	}
	if sum.EntitiesCreated != 3 || sum.RelationsCreated != 1 {
		t.Fatalf("summary: entities=%d relations=%d", sum.EntitiesCreated, sum.RelationsCreated)
	}
	if n := len(store.Rels("KNOWS")); n != 0 {
		t.Fatalf("dangling KNOWS edges written: %d", n)
	}
}

type shortProvider struct{}

func (shortProvider) Name() string   { return "short" }
func (shortProvider) Dimension() int { return 10 }
func (shortProvider) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, 8), nil
}

func TestExportRejectsWrongDimension(t *testing.T) {
	store := graphtest.New()
	g := acmeGraph()
	g.Chunks = nil
	g.Document = nil
	g.Relations = nil

	sum, err := newTestExporter(store, shortProvider{}).Export(context.Background(), g, ExportOptions{MergeDuplicates: true, Embed: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.EntitiesCreated != 0 || len(sum.ItemErrors()) != 2 {
		t.Fatalf("summary: created=%d errors=%v", sum.EntitiesCreated, sum.Errors)
	}
	var dimErr *embedding.DimensionError
	if !errors.As(sum.ItemErrors()[0], &dimErr) || dimErr.Want != 10 || dimErr.Got != 8 {
		t.Fatalf("want DimensionError 10/8 got=%v", sum.ItemErrors()[0])
	}
	if sum.ItemErrors()[0].Kind != ItemErrorEmbeddingDimension {
		t.Fatalf("kind: got=%s", sum.ItemErrors()[0].Kind)
	}
	if n := len(store.Nodes("")); n != 0 {
		t.Fatalf("nodes written despite bad vectors: %d", n)
	}
}

func TestExportAbortsWhenStoreUnreachable(t *testing.T) {
	store := graphtest.New()
	store.FailWhen(func(cypher string) error {
		if strings.HasPrefix(cypher, "MERGE (e:") {
			return &neo4jdb.ConnectivityError{Op: "run", Cause: errors.New("connection reset")}
		}
		return nil
	})
	sum, err := newTestExporter(store, nil).Export(context.Background(), acmeGraph(), ExportOptions{MergeDuplicates: true})
	if !neo4jdb.IsConnectivity(err) {
		t.Fatalf("want connectivity error got=%v", err)
	}
	if sum == nil || sum.EntitiesCreated != 0 || sum.FinishedAt.IsZero() {
		t.Fatalf("summary on abort: %+v", sum)
	}
	if n := len(store.Rels("EMPLOYS")); n != 0 {
		t.Fatalf("relations written after abort: %d", n)
	}
	if n := store.OpenSessions(); n != 0 {
		t.Fatalf("sessions left open: %d", n)
	}
}

func TestExportKeepsHostileTextOutOfQueries(t *testing.T) {
	store := graphtest.New()
	hostileName := "x'}) MATCH (n) DETACH DELETE n //"
	g := &domain.DocumentGraph{
		Entities: []domain.Entity{
			{ID: "e1", Name: hostileName, Type: "Person`) DETACH DELETE n //",
				Properties: domain.PropertiesOf("evil`key", "v")},
			{ID: "e2", Name: "B", Type: "PERSON"},
		},
		Relations: []domain.Relation{
			{ID: "r1", SourceEntityID: "e1", TargetEntityID: "e2", RelationType: "KNOWS]->(x) DELETE x"},
		},
	}
	sum, err := newTestExporter(store, nil).Export(context.Background(), g, ExportOptions{MergeDuplicates: true})
	if err != nil || len(sum.Errors) != 0 {
		t.Fatalf("Export: err=%v errors=%v", err, sum.Errors)
	}
	for _, stmt := range store.Statements() {
		if strings.Contains(stmt, hostileName) || strings.Contains(stmt, "//") {
			t.Fatalf("raw text reached query structure:\n%s", stmt)
		}
	}
	n := store.NodeByID("e1")
	if n == nil || !n.HasLabel("Person_DETACH_DELETE_n") || n.Props["name"] != hostileName || n.Props["evil_key"] != "v" {
		t.Fatalf("hostile entity stored wrong: %+v", n)
	}
	if rels := store.Rels("KNOWS_x_DELETE_x"); len(rels) != 1 || rels[0].Props["relation_type"] != "KNOWS]->(x) DELETE x" {
		t.Fatalf("hostile relation stored wrong: %+v", rels)
	}
}

func TestExportClearWithoutEmbedDropsIndexes(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	x := newTestExporter(store, embedding.NewHashProvider(testDim))
	if _, err := x.Export(ctx, acmeGraph(), ExportOptions{MergeDuplicates: true, Embed: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, ok := store.Index(ChunkIndex.Name.String()); !ok {
		t.Fatalf("chunk index missing after embedded export")
	}
	if _, err := x.Export(ctx, acmeGraph(), ExportOptions{ClearExisting: true, MergeDuplicates: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	for _, spec := range []IndexSpec{EntityIndex, ChunkIndex} {
		if _, ok := store.Index(spec.Name.String()); ok {
			t.Fatalf("index %s survived a clear without embeddings", spec.Name)
		}
	}
	if n := len(store.Nodes("EmbeddedEntity")); n != 0 {
		t.Fatalf("stale embedded entities: %d", n)
	}
}

func TestExportEmbedWithoutProvider(t *testing.T) {
	_, err := newTestExporter(graphtest.New(), nil).Export(context.Background(), acmeGraph(), ExportOptions{Embed: true})
	if !errors.Is(err, ErrNoEmbedder) {
		t.Fatalf("want ErrNoEmbedder got=%v", err)
	}
}

func TestStatisticsAndClearProvenance(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	x := newTestExporter(store, embedding.NewHashProvider(testDim))
	if _, err := x.Export(ctx, acmeGraph(), ExportOptions{MergeDuplicates: true, Embed: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	st, err := x.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.TotalNodes != 5 || st.NodesByLabel["Chunk"] != 2 || st.RelationshipsByType["EMPLOYS"] != 1 {
		t.Fatalf("statistics: %+v", st)
	}
	// FIRST_CHUNK + 2 PART_OF + NEXT_CHUNK + EMPLOYS + 2 MENTIONED_IN
	if st.TotalRelationships != 7 {
		t.Fatalf("total relationships: want=7 got=%d", st.TotalRelationships)
	}
	deleted, err := x.ClearProvenance(ctx)
	if err != nil || deleted != 5 {
		t.Fatalf("ClearProvenance: deleted=%d err=%v", deleted, err)
	}
	for _, spec := range []IndexSpec{EntityIndex, ChunkIndex} {
		if _, ok := store.Index(spec.Name.String()); ok {
			t.Fatalf("index %s survived ClearProvenance", spec.Name)
		}
	}
	if n := store.OpenSessions(); n != 0 {
		t.Fatalf("sessions left open: %d", n)
	}
}

func TestExportKeepsImportWhenIndexCreationFails(t *testing.T) {
	store := graphtest.New()
	store.FailWhen(func(cypher string) error {
		if strings.HasPrefix(cypher, "CREATE VECTOR INDEX `"+EntityIndex.Name.String()+"`") {
			return &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.ArgumentError", Msg: "unsupported vector index configuration"}
		}
		return nil
	})
	sum, err := newTestExporter(store, embedding.NewHashProvider(testDim)).Export(context.Background(), acmeGraph(),
		ExportOptions{MergeDuplicates: true, Embed: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.IndexReady {
		t.Fatalf("IndexReady: want=false got=true")
	}
	if sum.EntitiesCreated != 2 || sum.RelationsCreated != 1 || len(sum.Errors) != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	if len(sum.Warnings) != 1 || !strings.Contains(sum.Warnings[0], "vector index create entity_embedding_index failed") {
		t.Fatalf("warnings: got=%v", sum.Warnings)
	}
	if _, ok := store.Index(ChunkIndex.Name.String()); !ok {
		t.Fatalf("chunk index should still be created")
	}
}

func TestExportClearIndexDropFailures(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantAbort  bool
		wantWarned bool
	}{
		{"rejected", &neo4j.Neo4jError{Code: "Neo.DatabaseError.Schema.IndexDropFailed", Msg: "busy"}, false, true},
		{"unreachable", &neo4jdb.ConnectivityError{Op: "run", Cause: errors.New("connection reset")}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := graphtest.New()
			store.FailWhen(func(cypher string) error {
				if strings.HasPrefix(cypher, "DROP INDEX ") {
					return tc.err
				}
				return nil
			})
			sum, err := newTestExporter(store, nil).Export(context.Background(), acmeGraph(),
				ExportOptions{ClearExisting: true, MergeDuplicates: true})
			if tc.wantAbort {
				if !neo4jdb.IsConnectivity(err) {
					t.Fatalf("want connectivity error got=%v", err)
				}
				if n := len(store.Nodes("")); n != 0 {
					t.Fatalf("nodes written after abort: %d", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if sum.EntitiesCreated != 2 || len(sum.Errors) != 0 {
				t.Fatalf("summary: %+v", sum)
			}
			if tc.wantWarned && len(sum.Warnings) != 2 {
				t.Fatalf("warnings: want one per index got=%v", sum.Warnings)
			}
		})
	}
}

func TestExportStoresNestedPropertiesAsJSON(t *testing.T) {
	store := graphtest.New()
	hq := map[string]any{"city": "Berlin", "geo": map[string]any{"lat": 52.52, "lon": 13.405}, "zip": "10115"}
	g := acmeGraph()
	g.Entities[0].Properties.Set("hq", hq)
	g.Entities[1].Properties = domain.PropertiesOf("score", map[string]any{"bad": math.NaN()})

	sum, err := newTestExporter(store, nil).Export(context.Background(), g, ExportOptions{MergeDuplicates: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	text, ok := store.NodeByID("e1").Props["hq"].(string)
	if !ok {
		t.Fatalf("hq: want JSON text got=%T", store.NodeByID("e1").Props["hq"])
	}
	var back map[string]any
	if err := json.Unmarshal([]byte(text), &back); err != nil {
		t.Fatalf("hq: %v", err)
	}
	if !reflect.DeepEqual(back, hq) {
		t.Fatalf("hq round trip: want=%v got=%v", hq, back)
	}

	jane := store.NodeByID("e2")
	if _, ok := jane.Props["score"]; ok || sum.EntitiesCreated != 2 {
		t.Fatalf("unencodable value stored: props=%v created=%d", jane.Props, sum.EntitiesCreated)
	}
	if len(sum.Warnings) != 1 || !strings.Contains(sum.Warnings[0], `entity e2: property "score" dropped`) {
		t.Fatalf("warnings: got=%v", sum.Warnings)
	}
}

func TestExportEntityTypedLikeScaffolding(t *testing.T) {
	for _, typ := range []string{"Document", "Chunk"} {
		t.Run(typ, func(t *testing.T) {
			ctx := context.Background()
			store := graphtest.New()
			hash := embedding.NewHashProvider(testDim)
			g := &domain.DocumentGraph{
				Document: &domain.Document{DocID: "doc-1"},
				Chunks:   []domain.Chunk{{ID: "c0", Text: "Acme signed the lease.", Index: 0}},
				Entities: []domain.Entity{
					{ID: "c0", Name: "Lease", Type: typ, SourceChunkIDs: []string{"c0"}},
					{ID: "e2", Name: "Acme Corp", Type: "ORGANIZATION"},
				},
				Relations: []domain.Relation{
					{ID: "r1", SourceEntityID: "e2", TargetEntityID: "c0", RelationType: "SIGNED"},
				},
			}
			sum, err := NewExporter(store, hash, nil).Export(ctx, g, ExportOptions{MergeDuplicates: true, Embed: true})
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if sum.EntitiesCreated != 2 || sum.RelationsCreated != 1 || sum.MentionsCreated != 1 || len(sum.Errors) != 0 {
				t.Fatalf("summary: entities=%d relations=%d mentions=%d errors=%v",
					sum.EntitiesCreated, sum.RelationsCreated, sum.MentionsCreated, sum.Errors)
			}
			if n := len(store.Nodes(typ)); n != 1 {
				t.Fatalf("%s nodes: want=1 got=%d", typ, n)
			}
			if n := len(store.Nodes(typ + ReservedLabelSuffix)); n != 1 {
				t.Fatalf("%s%s nodes: want=1 got=%d", typ, ReservedLabelSuffix, n)
			}
			signed := store.Rels("SIGNED")
			if len(signed) != 1 {
				t.Fatalf("SIGNED: want=1 got=%d", len(signed))
			}
			if _, b := store.Endpoints(signed[0]); b.HasLabel("Chunk") || b.HasLabel("Document") {
				t.Fatalf("relation attached to scaffolding node: %v", b.Labels)
			}

			out, err := NewRetriever(store, hash, nil).Retrieve(ctx, "Acme", RetrieveOptions{TopK: 2, ExpandHop: 1})
			if err != nil {
				t.Fatalf("Retrieve: %v", err)
			}
			if !strings.Contains(out, "- Acme Corp --[SIGNED]--> Lease") {
				t.Fatalf("expansion missed the entity: got=%q", out)
			}
		})
	}
}
