package services

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// CancellationHandler returns leased inputs to the Ready pool.
type CancellationHandler interface {
	// Cancel releases every id or none of them. The first id that does not
	// exist, is not owned by client or is no longer Assigned aborts the call.
	Cancel(dbc dbctx.Context, inputIDs []int64, client *types.Client) (int, error)
}

type cancellationHandler struct {
	db        *gorm.DB
	log       *logger.Logger
	clock     clockwork.Clock
	inputRepo repos.InputRepo
}

func NewCancellationHandler(db *gorm.DB, log *logger.Logger, clock clockwork.Clock, inputRepo repos.InputRepo) CancellationHandler {
	return &cancellationHandler{
		db:        db,
		log:       log.With("service", "CancellationHandler"),
		clock:     clock,
		inputRepo: inputRepo,
	}
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (h *cancellationHandler) Cancel(dbc dbctx.Context, inputIDs []int64, client *types.Client) (int, error) {
	if client == nil {
		return 0, ErrClientNotFound
	}
	ids := dedupeIDs(inputIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	now := h.clock.Now().UTC()
	err := dbc.DB(h.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		for _, id := range ids {
			in, err := h.inputRepo.GetByIDForUpdate(inner, id)
			if err != nil {
				return storageErr("load input", err)
			}
			if in == nil {
				return fmt.Errorf("input %d: %w", id, ErrInputNotFound)
			}
			if !in.IsAssignedTo(client.ID) {
				return fmt.Errorf("input %d: %w", id, ErrOwnershipMismatch)
			}
			// Processed inputs keep their result and never return to the pool.
			if in.Status != types.InputStatusAssigned {
				return fmt.Errorf("input %d is %s: %w", id, in.Status, ErrInputNotLeased)
			}
			released, err := h.inputRepo.Release(inner, id, client.ID, now)
			if err != nil {
				return storageErr("release input", err)
			}
			if !released {
				return fmt.Errorf("input %d: %w", id, ErrInputNotLeased)
			}
		}
		return nil
	})
	if err != nil {
		h.log.Warn("Cancel rejected", "client_id", client.ID, "input_ids", ids, "error", err)
		return 0, err
	}
	h.log.Info("Inputs returned to pool", "client_id", client.ID, "count", len(ids))
	return len(ids), nil
}
