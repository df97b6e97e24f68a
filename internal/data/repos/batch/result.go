package batch

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type ResultRepo interface {
	Create(dbc dbctx.Context, result *types.Result) (*types.Result, error)
	GetByInputID(dbc dbctx.Context, inputID int64) (*types.Result, error)
	Update(dbc dbctx.Context, result *types.Result, now time.Time) error
	Count(dbc dbctx.Context) (int64, error)
}

type resultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) ResultRepo {
	return &resultRepo{
		db:  db,
		log: baseLog.With("repo", "ResultRepo"),
	}
}

func (r *resultRepo) Create(dbc dbctx.Context, result *types.Result) (*types.Result, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if result == nil {
		return nil, errors.New("result is nil")
	}
	if err := transaction.WithContext(dbc.Ctx).Create(result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *resultRepo) GetByInputID(dbc dbctx.Context, inputID int64) (*types.Result, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var res types.Result
	err := transaction.WithContext(dbc.Ctx).
		Where("input_id = ?", inputID).
		Limit(1).
		Take(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// Update writes every payload column of result, including zero values.
func (r *resultRepo) Update(dbc dbctx.Context, result *types.Result, now time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if result == nil || result.ID == 0 {
		return errors.New("result id required")
	}
	result.UpdatedAt = now
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Result{}).
		Where("id = ?", result.ID).
		Updates(map[string]interface{}{
			"result":         result.ResultKey,
			"container_id":   result.ContainerID,
			"client_version": result.ClientVersion,
			"tic_id":         result.TICID,
			"sector":         result.Sector,
			"camera":         result.Camera,
			"ccd":            result.CCD,
			"ra":             result.RA,
			"dec":            result.Dec,
			"tmag":           result.TMag,
			"is_planet":      result.IsPlanet,
			"is_not_planet":  result.IsNotPlanet,
			"frequencies":    result.Frequencies,
			"modified_on":    now,
		}).Error
}

func (r *resultRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.Result{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
