package services

import (
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// IdentityDirectory maps an email to a lab client record.
type IdentityDirectory interface {
	// ResolveOrCreate returns the client for email, creating it on first sight and
	// overwriting every profile field when any of them drifted.
	ResolveOrCreate(dbc dbctx.Context, email string, profile types.Profile) (*types.Client, error)
	Lookup(dbc dbctx.Context, email string) (*types.Client, error)
}

type identityDirectory struct {
	db         *gorm.DB
	log        *logger.Logger
	clock      clockwork.Clock
	clientRepo repos.ClientRepo
}

func NewIdentityDirectory(db *gorm.DB, log *logger.Logger, clock clockwork.Clock, clientRepo repos.ClientRepo) IdentityDirectory {
	return &identityDirectory{
		db:         db,
		log:        log.With("service", "IdentityDirectory"),
		clock:      clock,
		clientRepo: clientRepo,
	}
}

func (s *identityDirectory) Lookup(dbc dbctx.Context, email string) (*types.Client, error) {
	c, err := s.clientRepo.GetByEmail(dbc, email)
	if err != nil {
		return nil, storageErr("lookup client", err)
	}
	if c == nil {
		return nil, ErrClientNotFound
	}
	return c, nil
}

func (s *identityDirectory) ResolveOrCreate(dbc dbctx.Context, email string, profile types.Profile) (*types.Client, error) {
	email = types.NormalizeEmail(email)
	if email == "" {
		return nil, validationf("email", "is required")
	}
	profile = profile.Normalize()

	existing, err := s.clientRepo.GetByEmail(dbc, email)
	if err != nil {
		return nil, storageErr("lookup client", err)
	}
	if existing == nil {
		created, err := s.clientRepo.Create(dbc, &types.Client{Email: email, Profile: profile})
		if err == nil {
			s.log.Info("Registered client", "client_id", created.ID, "email", email)
			return created, nil
		}
		if !repos.IsUniqueViolation(err) {
			return nil, storageErr("create client", err)
		}
		// A concurrent request registered the same email first.
		existing, err = s.clientRepo.GetByEmail(dbc, email)
		if err != nil {
			return nil, storageErr("lookup client", err)
		}
		if existing == nil {
			return nil, storageErr("lookup client", gorm.ErrRecordNotFound)
		}
	}

	if existing.Profile == profile {
		return existing, nil
	}
	now := s.clock.Now().UTC()
	if err := s.clientRepo.UpdateProfile(dbc, existing.ID, profile, now); err != nil {
		return nil, storageErr("update client profile", err)
	}
	s.log.Debug("Client profile updated", "client_id", existing.ID)
	existing.Profile = profile
	existing.UpdatedAt = now
	return existing, nil
}
