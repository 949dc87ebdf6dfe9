package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/graphstore/internal/data/graph"
	"github.com/yungbote/graphstore/internal/data/repos"
	"github.com/yungbote/graphstore/internal/domain"
	"github.com/yungbote/graphstore/internal/pkg/dbctx"
	apperrors "github.com/yungbote/graphstore/internal/pkg/errors"
	"github.com/yungbote/graphstore/internal/platform/ctxutil"
	"github.com/yungbote/graphstore/internal/platform/logger"
)

type GraphService interface {
	Import(ctx context.Context, g *domain.DocumentGraph, opts graph.ExportOptions) (*graph.ExportSummary, error)
	Retrieve(ctx context.Context, query string, opts graph.RetrieveOptions) (string, error)
	SearchChunks(ctx context.Context, query string, topK int) ([]graph.Passage, error)
	Stats(ctx context.Context) (*graph.Statistics, error)
	ListImports(ctx context.Context, documentID string, limit int) ([]*domain.ImportRun, error)
	// ClearOwned removes every node this service wrote and returns how many went.
	ClearOwned(ctx context.Context) (int, error)
}

type graphService struct {
	log       *logger.Logger
	exporter  *graph.Exporter
	retriever *graph.Retriever
	runs      repos.ImportRunRepo
}

// NewGraphService wires the engine. runs may be nil, in which case imports are
// not recorded and ListImports returns an empty list.
func NewGraphService(
	baseLog *logger.Logger,
	exporter *graph.Exporter,
	retriever *graph.Retriever,
	runs repos.ImportRunRepo,
) GraphService {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &graphService{
		log:       baseLog.With("service", "GraphService"),
		exporter:  exporter,
		retriever: retriever,
		runs:      runs,
	}
}

func (s *graphService) Import(ctx context.Context, g *domain.DocumentGraph, opts graph.ExportOptions) (*graph.ExportSummary, error) {
	ctx = ctxutil.Default(ctx)
	if g == nil {
		return nil, fmt.Errorf("%w: document graph is required", apperrors.ErrInvalidArgument)
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	if problems := g.Validate(); len(problems) > 0 {
		s.log.Warn("document graph has invalid items; they will be skipped",
			"run_id", opts.RunID.String(), "problems", len(problems), "first", problems[0].Error())
	}
	s.startRun(ctx, g, opts)

	summary, err := s.exporter.Export(ctx, g, opts)
	s.finishRun(ctx, opts.RunID, summary, err)
	if err != nil {
		s.log.Error("graph import aborted", "run_id", opts.RunID.String(), "error", err)
		return summary, err
	}
	return summary, nil
}

func (s *graphService) Retrieve(ctx context.Context, query string, opts graph.RetrieveOptions) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: query is required", apperrors.ErrInvalidArgument)
	}
	if opts.TopK < 0 || opts.ExpandHop < 0 {
		return "", fmt.Errorf("%w: top_k and expand_hop must not be negative", apperrors.ErrInvalidArgument)
	}
	return s.retriever.Retrieve(ctxutil.Default(ctx), query, opts)
}

func (s *graphService) SearchChunks(ctx context.Context, query string, topK int) ([]graph.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", apperrors.ErrInvalidArgument)
	}
	out, err := s.retriever.SearchChunks(ctxutil.Default(ctx), query, topK)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []graph.Passage{}
	}
	return out, nil
}

func (s *graphService) Stats(ctx context.Context) (*graph.Statistics, error) {
	return s.exporter.Statistics(ctxutil.Default(ctx))
}

func (s *graphService) ClearOwned(ctx context.Context) (int, error) {
	n, err := s.exporter.ClearProvenance(ctxutil.Default(ctx))
	if err != nil {
		s.log.Error("clear owned graph failed", "error", err)
		return n, err
	}
	return n, nil
}

func (s *graphService) ListImports(ctx context.Context, documentID string, limit int) ([]*domain.ImportRun, error) {
	if s.runs == nil {
		return []*domain.ImportRun{}, nil
	}
	return s.runs.ListRecent(dbctx.Of(ctxutil.Default(ctx)), strings.TrimSpace(documentID), limit)
}

// Ledger writes are best effort: a failing ledger never fails an import.

func (s *graphService) startRun(ctx context.Context, g *domain.DocumentGraph, opts graph.ExportOptions) {
	if s.runs == nil {
		return
	}
	docID := g.DocumentID
	if docID == "" && g.Document != nil {
		docID = g.Document.DocID
	}
	_, err := s.runs.Create(dbctx.Of(ctx), &domain.ImportRun{
		ID:              opts.RunID,
		DocumentID:      docID,
		Status:          domain.ImportRunStatusRunning,
		ClearExisting:   opts.ClearExisting,
		MergeDuplicates: opts.MergeDuplicates,
		Embed:           opts.Embed,
		StartedAt:       time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("import ledger create failed", "run_id", opts.RunID.String(), "error", err)
	}
}

func (s *graphService) finishRun(ctx context.Context, runID uuid.UUID, summary *graph.ExportSummary, exportErr error) {
	if s.runs == nil {
		return
	}
	updates := map[string]interface{}{
		"status":      runStatus(summary, exportErr),
		"finished_at": time.Now().UTC(),
	}
	if summary != nil {
		errs := summary.Errors
		if exportErr != nil {
			errs = append(append([]string{}, errs...), exportErr.Error())
		}
		updates["entities_created"] = summary.EntitiesCreated
		updates["entities_updated"] = summary.EntitiesUpdated
		updates["relations_created"] = summary.RelationsCreated
		updates["relations_updated"] = summary.RelationsUpdated
		updates["error_count"] = len(errs)
		updates["errors"] = jsonList(errs)
		updates["warnings"] = jsonList(summary.Warnings)
	}
	// The request context may already be cancelled; the ledger row should still close.
	if err := s.runs.UpdateFields(dbctx.Of(context.WithoutCancel(ctx)), runID, updates); err != nil {
		s.log.Warn("import ledger finish failed", "run_id", runID.String(), "error", err)
	}
}

func runStatus(summary *graph.ExportSummary, err error) string {
	switch {
	case err != nil:
		return domain.ImportRunStatusFailed
	case summary != nil && len(summary.Errors) > 0:
		return domain.ImportRunStatusPartial
	default:
		return domain.ImportRunStatusSucceeded
	}
}

func jsonList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}
