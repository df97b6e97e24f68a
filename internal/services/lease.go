package services

import (
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// LeaseManager hands out Ready inputs to clients.
type LeaseManager interface {
	// Lease atomically assigns up to size Ready inputs with id > minID to client
	// under batchLabel and returns every input carrying that label.
	Lease(dbc dbctx.Context, batchLabel uuid.UUID, size int, client *types.Client, minID int64) ([]*types.Input, error)
}

type leaseManager struct {
	log       *logger.Logger
	clock     clockwork.Clock
	inputRepo repos.InputRepo
}

func NewLeaseManager(log *logger.Logger, clock clockwork.Clock, inputRepo repos.InputRepo) LeaseManager {
	return &leaseManager{
		log:       log.With("service", "LeaseManager"),
		clock:     clock,
		inputRepo: inputRepo,
	}
}

func (m *leaseManager) Lease(dbc dbctx.Context, batchLabel uuid.UUID, size int, client *types.Client, minID int64) ([]*types.Input, error) {
	if size <= 0 {
		return nil, validationf("batchSize", "must be positive")
	}
	if batchLabel == uuid.Nil {
		return nil, validationf("batchId", "is required")
	}
	if client == nil || client.ID == 0 {
		return nil, validationf("email", "unknown client")
	}

	inputs, err := m.inputRepo.ClaimBatch(dbc, batchLabel, size, client.ID, minID, m.clock.Now().UTC())
	if err != nil {
		return nil, storageErr("claim batch", err)
	}
	if len(inputs) == 0 {
		return nil, ErrNoInputsAvailable
	}
	m.log.Info("Batch leased", "batch_id", batchLabel.String(), "client_id", client.ID, "requested", size, "leased", len(inputs))
	return inputs, nil
}
