package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/graphstore/internal/data/db"
	"github.com/yungbote/graphstore/internal/embedding"
	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/platform/neo4jdb"
	"github.com/yungbote/graphstore/internal/platform/openai"
)

type Clients struct {
	Neo4j      *neo4jdb.Client
	Embedder   embedding.Provider
	EmbedCache *embedding.RedisStore
	Ledger     *db.LedgerService
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Neo4j
	graphDB, err := neo4jdb.New(ctx, cfg.Neo4jConfig(), log)
	if err != nil {
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	c.Neo4j = graphDB

	// Embeddings
	embedder, err := wireEmbedder(log, cfg.Embedding)
	if err != nil {
		c.Close(ctx)
		return Clients{}, err
	}
	if addr := strings.TrimSpace(cfg.Embedding.RedisAddr); addr != "" {
		store, err := embedding.NewRedisStore(ctx, addr)
		if err != nil {
			c.Close(ctx)
			return Clients{}, fmt.Errorf("init embedding cache: %w", err)
		}
		c.EmbedCache = store
		embedder = embedding.NewCached(embedder, store, cfg.CacheTTL(), log)
	}
	c.Embedder = embedder
	log.Info("embedding provider ready", "provider", embedder.Name(), "dimension", embedder.Dimension(), "cached", c.EmbedCache != nil)

	// Ledger
	if dsn := strings.TrimSpace(cfg.Ledger.DSN); dsn != "" {
		ledger, err := db.OpenLedger(dsn, log)
		if err != nil {
			c.Close(ctx)
			return Clients{}, fmt.Errorf("init ledger: %w", err)
		}
		c.Ledger = ledger
	} else {
		log.Info("import ledger disabled (LEDGER_DSN not set)")
	}

	return c, nil
}

func wireEmbedder(log *logger.Logger, cfg EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case EmbeddingProviderOpenAI:
		client, err := openai.New(log, openai.Options{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.Model,
			Dimensions: cfg.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		p, err := embedding.NewOpenAIProvider(client, cfg.Dimension)
		if err != nil {
			return nil, fmt.Errorf("init openai embeddings: %w", err)
		}
		return p, nil
	default:
		return embedding.NewHashProvider(cfg.Dimension), nil
	}
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.EmbedCache != nil {
		_ = c.EmbedCache.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
}
