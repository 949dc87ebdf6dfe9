package app

import (
	"github.com/yungbote/graphstore/internal/data/repos"
	"github.com/yungbote/graphstore/internal/platform/logger"
)

type Repos struct {
	ImportRuns repos.ImportRunRepo
}

func wireRepos(clients Clients, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	if clients.Ledger == nil {
		return Repos{}
	}
	return Repos{
		ImportRuns: repos.NewImportRunRepo(clients.Ledger.DB(), log),
	}
}
