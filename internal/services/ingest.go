package services

import (
	"errors"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// IngestOutcome is what a successful ingestion recorded.
type IngestOutcome struct {
	Input  *types.Input
	Client *types.Client
	Result *types.Result
	// First is true only when this call created the Result.
	First bool
}

// ResultIngester records uploaded results against leased inputs.
type ResultIngester interface {
	Ingest(dbc dbctx.Context, inputID int64, email string, content types.OutputContent) (*IngestOutcome, error)
}

type resultIngester struct {
	db         *gorm.DB
	log        *logger.Logger
	clock      clockwork.Clock
	inputRepo  repos.InputRepo
	clientRepo repos.ClientRepo
	resultRepo repos.ResultRepo
}

func NewResultIngester(
	db *gorm.DB,
	log *logger.Logger,
	clock clockwork.Clock,
	inputRepo repos.InputRepo,
	clientRepo repos.ClientRepo,
	resultRepo repos.ResultRepo,
) ResultIngester {
	return &resultIngester{
		db:         db,
		log:        log.With("service", "ResultIngester"),
		clock:      clock,
		inputRepo:  inputRepo,
		clientRepo: clientRepo,
		resultRepo: resultRepo,
	}
}

// Ingest checks, in order, that the input exists, the client exists and the
// client owns the input. It then marks the input Processed and creates or
// overwrites its Result in the same transaction. The input row stays locked
// until commit, so concurrent uploads for one input cannot both create.
func (s *resultIngester) Ingest(dbc dbctx.Context, inputID int64, email string, content types.OutputContent) (*IngestOutcome, error) {
	var (
		out *IngestOutcome
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		out, err = s.ingestOnce(dbc, inputID, email, content)
		if err == nil || !repos.IsUniqueViolation(err) {
			break
		}
		// Lost a create race on results.input_id; the retry takes the update path.
		s.log.Warn("Result create raced, retrying as update", "input_id", inputID)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("Result ingested", "input_id", inputID, "result_id", out.Result.ID, "client_id", out.Client.ID, "first", out.First)
	return out, nil
}

func (s *resultIngester) ingestOnce(dbc dbctx.Context, inputID int64, email string, content types.OutputContent) (*IngestOutcome, error) {
	out := &IngestOutcome{}
	err := dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}

		in, err := s.inputRepo.GetByIDForUpdate(inner, inputID)
		if err != nil {
			return storageErr("load input", err)
		}
		if in == nil {
			return ErrInputNotFound
		}
		client, err := s.clientRepo.GetByEmail(inner, email)
		if err != nil {
			return storageErr("load client", err)
		}
		if client == nil {
			return ErrClientNotFound
		}
		if !in.IsAssignedTo(client.ID) {
			return ErrOwnershipMismatch
		}

		now := s.clock.Now().UTC()
		if err := s.inputRepo.MarkProcessed(inner, in.ID, now); err != nil {
			return storageErr("mark input processed", err)
		}
		in.Status = types.InputStatusProcessed
		in.UpdatedAt = now

		existing, err := s.resultRepo.GetByInputID(inner, in.ID)
		if err != nil {
			return storageErr("load result", err)
		}
		if existing == nil {
			res := &types.Result{InputID: in.ID, CreatedAt: now, UpdatedAt: now}
			res.Apply(content)
			if _, err := s.resultRepo.Create(inner, res); err != nil {
				if repos.IsUniqueViolation(err) {
					return err
				}
				return storageErr("create result", err)
			}
			out.Result = res
			out.First = true
		} else {
			existing.Apply(content)
			if err := s.resultRepo.Update(inner, existing, now); err != nil {
				return storageErr("update result", err)
			}
			out.Result = existing
		}
		out.Input = in
		out.Client = client
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInputNotFound) || errors.Is(err, ErrClientNotFound) || errors.Is(err, ErrOwnershipMismatch) {
			s.log.Warn("Result rejected", "input_id", inputID, "email", email, "reason", err.Error())
		}
		return nil, err
	}
	return out, nil
}
