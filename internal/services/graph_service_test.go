package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/graphstore/internal/data/graph"
	"github.com/yungbote/graphstore/internal/data/graph/graphtest"
	"github.com/yungbote/graphstore/internal/data/repos"
	"github.com/yungbote/graphstore/internal/data/repos/testutil"
	"github.com/yungbote/graphstore/internal/domain"
	"github.com/yungbote/graphstore/internal/embedding"
	apperrors "github.com/yungbote/graphstore/internal/pkg/errors"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

func sampleGraph() *domain.DocumentGraph {
	return &domain.DocumentGraph{
		DocumentID: "doc-1",
		Entities: []domain.Entity{
			{ID: "e1", Name: "Acme Corp", Type: "ORGANIZATION"},
			{ID: "e2", Name: "Jane Doe", Type: "PERSON"},
		},
		Relations: []domain.Relation{
			{ID: "r1", SourceEntityID: "e1", TargetEntityID: "e2", RelationType: "EMPLOYS"},
		},
	}
}

func newGraphService(t *testing.T, store *graphtest.Store, withLedger bool) GraphService {
	t.Helper()
	hash := embedding.NewHashProvider(32)
	var runs repos.ImportRunRepo
	if withLedger {
		runs = repos.NewImportRunRepo(testutil.DB(t), testutil.Logger(t))
	}
	return NewGraphService(nil, graph.NewExporter(store, hash, nil), graph.NewRetriever(store, hash, nil), runs)
}

func TestGraphServiceImportRecordsRun(t *testing.T) {
	ctx := context.Background()
	svc := newGraphService(t, graphtest.New(), true)

	sum, err := svc.Import(ctx, sampleGraph(), graph.ExportOptions{MergeDuplicates: true, Embed: true})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	g := sampleGraph()
	g.Relations[0].TargetEntityID = "ghost"
	if _, err := svc.Import(ctx, g, graph.ExportOptions{MergeDuplicates: true}); err != nil {
		t.Fatalf("Import partial: %v", err)
	}

	runs, err := svc.ListImports(ctx, "doc-1", 10)
	if err != nil {
		t.Fatalf("ListImports: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs: want=2 got=%d", len(runs))
	}
	byID := map[string]*domain.ImportRun{}
	for _, r := range runs {
		byID[r.ID.String()] = r
	}
	first := byID[sum.RunID.String()]
	if first == nil {
		t.Fatalf("ledger row not keyed by summary run id %s", sum.RunID)
	}
	if first.Status != domain.ImportRunStatusSucceeded || first.EntitiesCreated != 2 || first.RelationsCreated != 1 || !first.Embed {
		t.Fatalf("first run: %+v", first)
	}
	if first.FinishedAt == nil {
		t.Fatalf("first run never finished")
	}
	for _, r := range runs {
		if r.ID == first.ID {
			continue
		}
		if r.Status != domain.ImportRunStatusPartial || r.ErrorCount != 1 {
			t.Fatalf("partial run: %+v", r)
		}
		var errs []string
		if err := json.Unmarshal(r.Errors, &errs); err != nil || len(errs) != 1 {
			t.Fatalf("partial run errors: %s (%v)", r.Errors, err)
		}
	}
}

func TestGraphServiceImportFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	store.Unreachable()
	svc := newGraphService(t, store, true)

	_, err := svc.Import(ctx, sampleGraph(), graph.ExportOptions{MergeDuplicates: true})
	if !neo4jdb.IsConnectivity(err) {
		t.Fatalf("want connectivity error got=%v", err)
	}
	runs, err := svc.ListImports(ctx, "", 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListImports: runs=%v err=%v", runs, err)
	}
	if runs[0].Status != domain.ImportRunStatusFailed || runs[0].ErrorCount != 1 {
		t.Fatalf("failed run: %+v", runs[0])
	}
}

func TestGraphServiceValidation(t *testing.T) {
	ctx := context.Background()
	svc := newGraphService(t, graphtest.New(), false)

	if _, err := svc.Import(ctx, nil, graph.ExportOptions{}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("Import(nil): want ErrInvalidArgument got=%v", err)
	}
	if _, err := svc.Retrieve(ctx, "  ", graph.DefaultRetrieveOptions()); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("Retrieve(blank): want ErrInvalidArgument got=%v", err)
	}
	if _, err := svc.Retrieve(ctx, "acme", graph.RetrieveOptions{TopK: -1}); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("Retrieve(top_k<0): want ErrInvalidArgument got=%v", err)
	}
	if _, err := svc.SearchChunks(ctx, "", 3); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("SearchChunks(blank): want ErrInvalidArgument got=%v", err)
	}
	runs, err := svc.ListImports(ctx, "", 5)
	if err != nil || runs == nil || len(runs) != 0 {
		t.Fatalf("ListImports without ledger: runs=%v err=%v", runs, err)
	}
}

func TestGraphServiceRetrieve(t *testing.T) {
	ctx := context.Background()
	svc := newGraphService(t, graphtest.New(), false)
	if _, err := svc.Retrieve(ctx, "acme", graph.DefaultRetrieveOptions()); !errors.Is(err, graph.ErrIndexUnavailable) {
		t.Fatalf("before import: want ErrIndexUnavailable got=%v", err)
	}
	if _, err := svc.Import(ctx, sampleGraph(), graph.ExportOptions{MergeDuplicates: true, Embed: true}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	out, err := svc.Retrieve(ctx, "Acme Corp", graph.RetrieveOptions{TopK: 1, ExpandHop: 1})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if want := "- Acme Corp --[EMPLOYS]--> Jane Doe"; !strings.Contains(out, want) {
		t.Fatalf("Retrieve: want %q in %q", want, out)
	}
	st, err := svc.Stats(ctx)
	if err != nil || st.NodesByLabel["EmbeddedEntity"] != 2 {
		t.Fatalf("Stats: %+v err=%v", st, err)
	}
}

func TestGraphServiceClearOwned(t *testing.T) {
	ctx := context.Background()
	store := graphtest.New()
	svc := newGraphService(t, store, false)
	if _, err := svc.Import(ctx, sampleGraph(), graph.ExportOptions{MergeDuplicates: true, Embed: true}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	n, err := svc.ClearOwned(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ClearOwned: deleted=%d err=%v", n, err)
	}
	st, err := svc.Stats(ctx)
	if err != nil || st.TotalNodes != 0 {
		t.Fatalf("Stats after clear: %+v err=%v", st, err)
	}
	if _, err := svc.Retrieve(ctx, "acme", graph.DefaultRetrieveOptions()); !errors.Is(err, graph.ErrIndexUnavailable) {
		t.Fatalf("after clear: want ErrIndexUnavailable got=%v", err)
	}
}
