package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type InputRepo = batch.InputRepo
type ClientRepo = batch.ClientRepo
type ResultRepo = batch.ResultRepo

func NewInputRepo(db *gorm.DB, baseLog *logger.Logger) InputRepo { return batch.NewInputRepo(db, baseLog) }
func NewClientRepo(db *gorm.DB, baseLog *logger.Logger) ClientRepo {
	return batch.NewClientRepo(db, baseLog)
}
func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) ResultRepo {
	return batch.NewResultRepo(db, baseLog)
}

// IsUniqueViolation reports whether err is a unique-key conflict on any supported dialect.
func IsUniqueViolation(err error) bool { return batch.IsUniqueViolation(err) }
