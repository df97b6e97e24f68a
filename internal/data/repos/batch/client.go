package batch

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type ClientRepo interface {
	Create(dbc dbctx.Context, client *types.Client) (*types.Client, error)
	GetByEmail(dbc dbctx.Context, email string) (*types.Client, error)
	UpdateProfile(dbc dbctx.Context, id int64, profile types.Profile, now time.Time) error
}

type clientRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClientRepo(db *gorm.DB, baseLog *logger.Logger) ClientRepo {
	return &clientRepo{
		db:  db,
		log: baseLog.With("repo", "ClientRepo"),
	}
}

func (r *clientRepo) Create(dbc dbctx.Context, client *types.Client) (*types.Client, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if client == nil {
		return nil, errors.New("client is nil")
	}
	client.Email = types.NormalizeEmail(client.Email)
	if err := transaction.WithContext(dbc.Ctx).Create(client).Error; err != nil {
		return nil, err
	}
	return client, nil
}

func (r *clientRepo) GetByEmail(dbc dbctx.Context, email string) (*types.Client, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	email = types.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	var c types.Client
	err := transaction.WithContext(dbc.Ctx).
		Where("email = ?", email).
		Limit(1).
		Take(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpdateProfile overwrites every profile field. Concurrent writers race last-write-wins.
func (r *clientRepo) UpdateProfile(dbc dbctx.Context, id int64, profile types.Profile, now time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Client{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"full_name":    profile.FullName,
			"team_name":    profile.TeamName,
			"company_name": profile.CompanyName,
			"location":     profile.Location,
			"country_code": profile.CountryCode,
			"modified_on":  now,
		}).Error
}
