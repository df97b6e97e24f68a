package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type Repos struct {
	Input  repos.InputRepo
	Client repos.ClientRepo
	Result repos.ResultRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Input:  repos.NewInputRepo(db, log),
		Client: repos.NewClientRepo(db, log),
		Result: repos.NewResultRepo(db, log),
	}
}
