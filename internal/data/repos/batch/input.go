package batch

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type InputRepo interface {
	Create(dbc dbctx.Context, inputs []*types.Input) ([]*types.Input, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Input, error)
	GetByIDForUpdate(dbc dbctx.Context, id int64) (*types.Input, error)
	GetByBatchLabel(dbc dbctx.Context, label uuid.UUID) ([]*types.Input, error)
	ClaimBatch(dbc dbctx.Context, label uuid.UUID, size int, clientID int64, minID int64, now time.Time) ([]*types.Input, error)
	CountAssignedTo(dbc dbctx.Context, clientID int64) (int64, error)
	MarkProcessed(dbc dbctx.Context, id int64, now time.Time) error
	Release(dbc dbctx.Context, id int64, clientID int64, now time.Time) (bool, error)
	CountByStatus(dbc dbctx.Context, status types.InputStatus) (int64, error)
}

type inputRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInputRepo(db *gorm.DB, baseLog *logger.Logger) InputRepo {
	return &inputRepo{
		db:  db,
		log: baseLog.With("repo", "InputRepo"),
	}
}

func (r *inputRepo) Create(dbc dbctx.Context, inputs []*types.Input) ([]*types.Input, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(inputs) == 0 {
		return []*types.Input{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&inputs).Error; err != nil {
		return nil, err
	}
	return inputs, nil
}

func (r *inputRepo) GetByID(dbc dbctx.Context, id int64) (*types.Input, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var in types.Input
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Take(&in).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &in, nil
}

// GetByIDForUpdate reads the input with a row lock held until dbc.Tx ends.
// Must be called inside a transaction to be meaningful.
func (r *inputRepo) GetByIDForUpdate(dbc dbctx.Context, id int64) (*types.Input, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var in types.Input
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Take(&in).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &in, nil
}

func (r *inputRepo) GetByBatchLabel(dbc dbctx.Context, label uuid.UUID) ([]*types.Input, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Input
	if err := transaction.WithContext(dbc.Ctx).
		Where("batch_label = ?", label).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimBatch assigns up to size Ready inputs with id > minID to clientID in a
// single UPDATE. Rows locked by a concurrent claim are skipped, not waited on,
// so a caller may receive fewer rows than requested while others exist.
// The returned slice is the read-back of every input carrying label.
func (r *inputRepo) ClaimBatch(dbc dbctx.Context, label uuid.UUID, size int, clientID int64, minID int64, now time.Time) ([]*types.Input, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if size <= 0 || label == uuid.Nil {
		return []*types.Input{}, nil
	}

	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		eligible := tx.Model(&types.Input{}).
			Select("id").
			Where("status = ? AND id > ?", types.InputStatusReady, minID).
			Order("id ASC").
			Limit(size).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		res := tx.Model(&types.Input{}).
			Where("id IN (?)", eligible).
			Updates(map[string]interface{}{
				"status":             types.InputStatusAssigned,
				"assigned_client_id": clientID,
				"batch_label":        label,
				"modified_on":        now,
			})
		if res.Error != nil {
			return res.Error
		}
		r.log.Debug("Claimed inputs", "batch_label", label.String(), "requested", size, "claimed", res.RowsAffected)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByBatchLabel(dbc, label)
}

func (r *inputRepo) CountAssignedTo(dbc dbctx.Context, clientID int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Input{}).
		Where("assigned_client_id = ? AND status = ?", clientID, types.InputStatusAssigned).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *inputRepo) MarkProcessed(dbc dbctx.Context, id int64, now time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Input{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      types.InputStatusProcessed,
			"modified_on": now,
		}).Error
}

// Release returns an Assigned input owned by clientID to the Ready pool.
// It reports false when no row matched (already released, processed or not owned).
func (r *inputRepo) Release(dbc dbctx.Context, id int64, clientID int64, now time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Input{}).
		Where("id = ? AND assigned_client_id = ? AND status = ?", id, clientID, types.InputStatusAssigned).
		Updates(map[string]interface{}{
			"status":             types.InputStatusReady,
			"assigned_client_id": nil,
			"batch_label":        nil,
			"modified_on":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *inputRepo) CountByStatus(dbc dbctx.Context, status types.InputStatus) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Input{}).
		Where("status = ?", status).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
