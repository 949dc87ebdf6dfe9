package graph

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/graphstore/internal/data/graph/graphtest"
	"github.com/yungbote/graphstore/internal/domain"
	"github.com/yungbote/graphstore/internal/embedding"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

func TestRetrieveWithoutIndex(t *testing.T) {
	r := NewRetriever(graphtest.New(), embedding.NewHashProvider(testDim), nil)
	_, err := r.Retrieve(context.Background(), "anything", DefaultRetrieveOptions())
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("want ErrIndexUnavailable got=%v", err)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	if err := NewIndexManager(store, nil).EnsureIndex(ctx, EntityIndex, testDim); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	out, err := NewRetriever(store, embedding.NewHashProvider(testDim), nil).Retrieve(ctx, "anything", DefaultRetrieveOptions())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if out != NoRelevantEntities {
		t.Fatalf("want=%q got=%q", NoRelevantEntities, out)
	}
}

func TestRetrieveCapsExpansion(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	hash := embedding.NewHashProvider(testDim)
	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"}
	g := &domain.DocumentGraph{}
	for i, n := range names {
		g.Entities = append(g.Entities, domain.Entity{ID: strings.ToLower(n), Name: n, Type: "NODE"})
		if i > 0 {
			g.Relations = append(g.Relations, domain.Relation{
				ID: "r" + n, SourceEntityID: strings.ToLower(names[i-1]), TargetEntityID: strings.ToLower(n), RelationType: "NEXT_TO",
			})
		}
	}
	if _, err := NewExporter(store, hash, nil).Export(ctx, g, ExportOptions{MergeDuplicates: true, Embed: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	out, err := NewRetriever(store, hash, nil).Retrieve(ctx, "Alpha", RetrieveOptions{TopK: 1, ExpandHop: 10})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(out, "- Charlie (NODE) --[NEXT_TO]--> Delta (NODE)") || strings.Contains(out, "Echo") {
		t.Fatalf("expansion not capped at %d hops: got=%q", MaxExpandHop, out)
	}
	if strings.Contains(out, "[similarity:") {
		t.Fatalf("score shown with IncludeScore=false: got=%q", out)
	}
	found := false
	for _, stmt := range store.Statements() {
		if strings.Contains(stmt, "[*1..3]") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expansion statement did not use the capped hop count")
	}
}

func TestRetrieveWithoutExpansion(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	hash := embedding.NewHashProvider(testDim)
	if _, err := NewExporter(store, hash, nil).Export(ctx, acmeGraph(), ExportOptions{MergeDuplicates: true, Embed: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	out, err := NewRetriever(store, hash, nil).Retrieve(ctx, "Acme", RetrieveOptions{TopK: 2, ExpandHop: 0, IncludeScore: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if strings.Contains(out, "## Relationships") {
		t.Fatalf("relationships listed with ExpandHop=0: got=%q", out)
	}
	if strings.Count(out, "\n- ") != 2 {
		t.Fatalf("want 2 entity lines got=%q", out)
	}
}

func TestSearchChunks(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	hash := embedding.NewHashProvider(testDim)
	if _, err := NewExporter(store, hash, nil).Export(ctx, acmeGraph(), ExportOptions{MergeDuplicates: true, Embed: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	passages, err := NewRetriever(store, hash, nil).SearchChunks(ctx, "builds rockets", 1)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(passages) != 1 || passages[0].ChunkID != "c0" || passages[0].DocumentID != "doc-1" || passages[0].Index != 0 {
		t.Fatalf("passages: %+v", passages)
	}
}

func TestFormatContext(t *testing.T) {
	matches := []Match{{ID: "e1", Name: "Acme", Type: "ORG", Description: "Rocket maker", Score: 0.91234}}
	neighbors := []Neighbor{
		{StartID: "e1", StartName: "Acme Corp", StartType: "ORG", Type: "EMPLOYS", EndID: "e9"},
		{StartID: "e8", StartName: "Beta", StartType: "ORG", Type: "OWNS", EndID: "e1", EndName: "Acme Corp"},
		{StartID: "e8", StartName: "Beta", StartType: "ORG", Type: "FUNDS", EndID: "e7", EndName: "Gamma", EndType: "PERSON"},
	}
	want := strings.Join([]string{
		"## Relevant entities (from vector search)",
		"- Acme (ORG). Rocket maker [similarity: 0.912]",
		"",
		"## Relationships",
		"- Acme --[EMPLOYS]--> e9",
		"- Beta (ORG) --[OWNS]--> Acme",
		"- Beta (ORG) --[FUNDS]--> Gamma (PERSON)",
	}, "\n")
	if got := FormatContext(matches, neighbors, true); got != want {
		t.Fatalf("FormatContext:\nwant=%q\ngot= %q", want, got)
	}
	if got := FormatContext(nil, nil, true); got != NoRelevantEntities {
		t.Fatalf("empty: got=%q", got)
	}
}

type cannedSession struct {
	res *neo4jdb.Result
}

func (s cannedSession) Run(context.Context, string, map[string]any) (*neo4jdb.Result, error) {
	return s.res, nil
}

func (cannedSession) Close(context.Context) error { return nil }

func TestExpandCollapsesRepeatedRelationships(t *testing.T) {
	keys := []string{"start_id", "start_name", "start_type", "rel_type", "end_id", "end_name", "end_type"}
	row := func(vals ...any) *neo4j.Record { return &neo4j.Record{Keys: keys, Values: vals} }
	sess := cannedSession{res: &neo4jdb.Result{Records: []*neo4j.Record{
		row("e1", "Acme", "ORG", "EMPLOYS", "e2", "Jane", "PERSON"),
		row("e1", "Acme", "ORG", "EMPLOYS", "e2", "Jane", "PERSON"),
		row("e2", "Jane", "PERSON", "EMPLOYS", "e1", "Acme", "ORG"),
		row("e1", "Acme", "ORG", nil, "e3", "Beta", "ORG"),
		row("e1", "Acme", "ORG", "OWNS", "e3", "Beta", "ORG"),
	}}}

	got, err := NewRetriever(nil, nil, nil).expandWith(context.Background(), sess, []string{"e1", "e2"}, 2)
	if err != nil {
		t.Fatalf("expandWith: %v", err)
	}
	want := []Neighbor{
		{StartID: "e1", StartName: "Acme", StartType: "ORG", Type: "EMPLOYS", EndID: "e2", EndName: "Jane", EndType: "PERSON"},
		{StartID: "e2", StartName: "Jane", StartType: "PERSON", Type: "EMPLOYS", EndID: "e1", EndName: "Acme", EndType: "ORG"},
		{StartID: "e1", StartName: "Acme", StartType: "ORG", Type: "OWNS", EndID: "e3", EndName: "Beta", EndType: "ORG"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("neighbors:\nwant=%+v\ngot= %+v", want, got)
	}
}
