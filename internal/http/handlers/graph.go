package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/graphstore/internal/data/graph"
	"github.com/yungbote/graphstore/internal/domain"
	"github.com/yungbote/graphstore/internal/http/response"
	"github.com/yungbote/graphstore/internal/platform/apierr"
	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/services"
)

const DefaultMaxImportBytes int64 = 32 << 20

type GraphHandler struct {
	log      *logger.Logger
	svc      services.GraphService
	defaults graph.ExportOptions
	maxBody  int64
}

// NewGraphHandler serves the import and retrieval routes. defaults seeds the
// export options before query parameters are applied.
func NewGraphHandler(log *logger.Logger, svc services.GraphService, defaults graph.ExportOptions, maxBodyBytes int64) *GraphHandler {
	if log == nil {
		log = logger.Nop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxImportBytes
	}
	return &GraphHandler{
		log:      log.With("handler", "GraphHandler"),
		svc:      svc,
		defaults: defaults,
		maxBody:  maxBodyBytes,
	}
}

// POST /api/graphs/import?clear=&merge=&embed=
func (h *GraphHandler) Import(c *gin.Context) {
	opts := h.defaults
	for _, p := range []struct {
		name string
		dst  *bool
	}{
		{"clear", &opts.ClearExisting},
		{"merge", &opts.MergeDuplicates},
		{"embed", &opts.Embed},
	} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, h.log, "import", apierr.BadRequest("invalid_argument", fmt.Errorf("query parameter %q: %w", p.name, err)))
			return
		}
		*p.dst = v
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	g, err := domain.LoadDocumentGraph(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.log, "import", apierr.New(http.StatusRequestEntityTooLarge, "payload_too_large", err))
			return
		}
		respondError(c, h.log, "import", apierr.BadRequest("invalid_graph", err))
		return
	}

	summary, err := h.svc.Import(c.Request.Context(), g, opts)
	if err != nil {
		respondError(c, h.log, "import", err)
		return
	}
	response.RespondOK(c, summary)
}

type retrieveRequest struct {
	Query        string `json:"query"`
	TopK         *int   `json:"top_k"`
	ExpandHop    *int   `json:"expand_hop"`
	IncludeScore *bool  `json:"include_score"`
}

// POST /api/retrieve
func (h *GraphHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, "retrieve", apierr.BadRequest("invalid_request", err))
		return
	}
	opts := graph.DefaultRetrieveOptions()
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.ExpandHop != nil {
		opts.ExpandHop = *req.ExpandHop
	}
	if req.IncludeScore != nil {
		opts.IncludeScore = *req.IncludeScore
	}
	out, err := h.svc.Retrieve(c.Request.Context(), req.Query, opts)
	if err != nil {
		respondError(c, h.log, "retrieve", err)
		return
	}
	response.RespondOK(c, gin.H{"context": out})
}

type searchChunksRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// POST /api/chunks/search
func (h *GraphHandler) SearchChunks(c *gin.Context) {
	var req searchChunksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, "search_chunks", apierr.BadRequest("invalid_request", err))
		return
	}
	passages, err := h.svc.SearchChunks(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		respondError(c, h.log, "search_chunks", err)
		return
	}
	if passages == nil {
		passages = []graph.Passage{}
	}
	response.RespondOK(c, gin.H{"passages": passages})
}

// GET /api/stats
func (h *GraphHandler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, "stats", err)
		return
	}
	response.RespondOK(c, st)
}

// GET /api/imports?document_id=&limit=
func (h *GraphHandler) ListImports(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, h.log, "list_imports", apierr.BadRequest("invalid_argument", fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}
	runs, err := h.svc.ListImports(c.Request.Context(), strings.TrimSpace(c.Query("document_id")), limit)
	if err != nil {
		respondError(c, h.log, "list_imports", err)
		return
	}
	if runs == nil {
		runs = []*domain.ImportRun{}
	}
	response.RespondOK(c, gin.H{"imports": runs})
}

// DELETE /api/graphs removes only what this service wrote.
func (h *GraphHandler) Clear(c *gin.Context) {
	n, err := h.svc.ClearOwned(c.Request.Context())
	if err != nil {
		respondError(c, h.log, "clear", err)
		return
	}
	response.RespondOK(c, gin.H{"nodes_deleted": n})
}
