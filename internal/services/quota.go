package services

import (
	"github.com/yungbote/sciencelab-batchserver/internal/data/repos"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// QuotaGuard bounds how many inputs a client may hold Assigned at once.
type QuotaGuard interface {
	CapBatchSize(dbc dbctx.Context, client *types.Client, requested int) (int, error)
}

type quotaGuard struct {
	log          *logger.Logger
	inputRepo    repos.InputRepo
	maxPerClient int
}

// NewQuotaGuard builds a guard; maxPerClient == 0 disables the quota.
func NewQuotaGuard(log *logger.Logger, inputRepo repos.InputRepo, maxPerClient int) QuotaGuard {
	return &quotaGuard{
		log:          log.With("service", "QuotaGuard"),
		inputRepo:    inputRepo,
		maxPerClient: maxPerClient,
	}
}

func (g *quotaGuard) CapBatchSize(dbc dbctx.Context, client *types.Client, requested int) (int, error) {
	if g.maxPerClient <= 0 {
		return requested, nil
	}
	current, err := g.inputRepo.CountAssignedTo(dbc, client.ID)
	if err != nil {
		return 0, storageErr("count assigned inputs", err)
	}
	effective := requested
	if int(current)+requested > g.maxPerClient {
		effective = g.maxPerClient - int(current)
	}
	if effective <= 0 {
		g.log.Warn("Client quota exhausted", "client_id", client.ID, "assigned", current, "max", g.maxPerClient)
		return 0, ErrQuotaExceeded
	}
	if effective < requested {
		g.log.Debug("Batch size clamped by quota", "client_id", client.ID, "requested", requested, "effective", effective)
	}
	return effective, nil
}
