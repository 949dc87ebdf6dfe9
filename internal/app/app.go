package app

import (
	"context"
	"fmt"

	"github.com/yungbote/graphstore/internal/data/graph"
	apphttp "github.com/yungbote/graphstore/internal/http"
	"github.com/yungbote/graphstore/internal/observability"
	"github.com/yungbote/graphstore/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *apphttp.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelCfg := observability.OtelConfigFromEnv()
	otelCfg.ServiceName = cfg.ServiceName
	shutdown := observability.InitOTel(ctx, log, otelCfg)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = shutdown(ctx)
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(clients, log)
	serviceset := wireServices(log, clients, reposet)

	// Retrieval answers index_unavailable until an embedding import has run.
	if err := ensureIndexes(ctx, log, clients); err != nil {
		log.Warn("vector index check failed (continuing)", "error", err)
	}

	handlers := wireHandlers(log, cfg, clients, serviceset)
	middleware := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, handlers, middleware)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       server,
		otelShutdown: shutdown,
	}, nil
}

func ensureIndexes(ctx context.Context, log *logger.Logger, clients Clients) error {
	mgr := graph.NewIndexManager(clients.Neo4j, log)
	for _, spec := range []graph.IndexSpec{graph.EntityIndex, graph.ChunkIndex} {
		ok, err := mgr.IndexExists(ctx, spec)
		if err != nil {
			return err
		}
		log.Info("vector index status", "index", spec.Name.String(), "exists", ok)
	}
	return nil
}

// Run serves HTTP on addr, or the configured address when addr is empty.
func (a *App) Run(addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if addr == "" {
		addr = a.Cfg.HTTP.Addr
	}
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return nil
	}
	return a.Server.Shutdown(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout())
	defer cancel()
	a.Clients.Close(ctx)
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
