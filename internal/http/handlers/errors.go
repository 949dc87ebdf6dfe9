package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/graphstore/internal/data/graph"
	"github.com/yungbote/graphstore/internal/http/response"
	apperrors "github.com/yungbote/graphstore/internal/pkg/errors"
	"github.com/yungbote/graphstore/internal/platform/apierr"
	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
)

// toAPIError maps service errors onto an HTTP status and error code.
func toAPIError(err error) *apierr.Error {
	if ae, ok := apierr.As(err); ok {
		return ae
	}
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return apierr.BadRequest("invalid_argument", err)
	case errors.Is(err, apperrors.ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, graph.ErrIndexUnavailable):
		return apierr.New(http.StatusConflict, "index_unavailable", err)
	case errors.Is(err, graph.ErrNoEmbedder):
		return apierr.New(http.StatusUnprocessableEntity, "embedding_unavailable", err)
	case neo4jdb.IsConnectivity(err):
		return apierr.New(http.StatusServiceUnavailable, "store_unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusGatewayTimeout, "timeout", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal", err)
	}
}

func respondError(c *gin.Context, log *logger.Logger, op string, err error) {
	ae := toAPIError(err)
	if ae.Status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", err, "code", ae.Code)
	} else {
		log.Warn(op+" rejected", "error", err, "code", ae.Code)
	}
	response.RespondError(c, ae.Status, ae.Code, ae.Err)
}
