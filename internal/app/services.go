package app

import (
	"github.com/yungbote/graphstore/internal/data/graph"
	"github.com/yungbote/graphstore/internal/platform/logger"
	"github.com/yungbote/graphstore/internal/services"
)

type Services struct {
	Exporter  *graph.Exporter
	Retriever *graph.Retriever
	Graph     services.GraphService
}

func wireServices(log *logger.Logger, clients Clients, reposet Repos) Services {
	log.Info("Wiring services...")
	exporter := graph.NewExporter(clients.Neo4j, clients.Embedder, log)
	retriever := graph.NewRetriever(clients.Neo4j, clients.Embedder, log)
	return Services{
		Exporter:  exporter,
		Retriever: retriever,
		Graph:     services.NewGraphService(log, exporter, retriever, reposet.ImportRuns),
	}
}
