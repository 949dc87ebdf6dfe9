package app

import (
	"github.com/yungbote/graphstore/internal/data/graph"
	apphttp "github.com/yungbote/graphstore/internal/http"
	httpH "github.com/yungbote/graphstore/internal/http/handlers"
	httpMW "github.com/yungbote/graphstore/internal/http/middleware"
	"github.com/yungbote/graphstore/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health *httpH.HealthHandler
	Graph  *httpH.GraphHandler
}

func wireHandlers(log *logger.Logger, cfg Config, clients Clients, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	defaults := graph.ExportOptions{
		ClearExisting:   cfg.Import.ClearExisting,
		MergeDuplicates: cfg.Import.MergeDuplicates,
		Embed:           cfg.Import.Embed,
	}
	return Handlers{
		Health: httpH.NewHealthHandler(clients.Neo4j),
		Graph:  httpH.NewGraphHandler(log, serviceset.Graph, defaults, cfg.HTTP.MaxImportBytes),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	auth := httpMW.NewAuthMiddleware(log, cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer)
	if !auth.Enabled() {
		log.Warn("API authentication disabled (API_JWT_SECRET not set)")
	}
	return Middleware{Auth: auth}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		AllowOrigins:   cfg.HTTP.AllowOrigins,
		AuthMiddleware: middleware.Auth,
		GraphHandler:   handlers.Graph,
		HealthHandler:  handlers.Health,
	})
}
