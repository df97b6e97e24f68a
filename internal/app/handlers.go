package app

import (
	httpH "github.com/yungbote/sciencelab-batchserver/internal/http/handlers"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type Handlers struct {
	Batch  *httpH.BatchHandler
	Health *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, serviceset Services, db httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Batch:  httpH.NewBatchHandler(log, serviceset.Batch),
		Health: httpH.NewHealthHandler(db),
	}
}
