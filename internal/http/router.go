package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/graphstore/internal/http/handlers"
	httpMW "github.com/yungbote/graphstore/internal/http/middleware"
	"github.com/yungbote/graphstore/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowOrigins   []string
	AuthMiddleware *httpMW.AuthMiddleware

	GraphHandler  *httpH.GraphHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Graph
		if cfg.GraphHandler != nil {
			protected.POST("/graphs/import", cfg.GraphHandler.Import)
			protected.DELETE("/graphs", cfg.GraphHandler.Clear)
			protected.POST("/retrieve", cfg.GraphHandler.Retrieve)
			protected.POST("/chunks/search", cfg.GraphHandler.SearchChunks)
			protected.GET("/stats", cfg.GraphHandler.Stats)
			protected.GET("/imports", cfg.GraphHandler.ListImports)
		}
	}

	return r
}
