package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/observability"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/countries"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

const (
	defaultUploadURITTL   = 24 * time.Hour
	defaultMaxOutputBytes = 1 << 20
)

type BatchConfig struct {
	MaxBatchSize int
	MinInputID   int64
	UploadURITTL time.Duration

	// ArchiveOutputs copies each accepted result body to the outputs bucket.
	ArchiveOutputs bool
	OutputsBucket  string
	MaxOutputBytes int64
	// TempDir is where upload bodies are spooled; empty means os.TempDir().
	TempDir string
}

type NewBatchRequest struct {
	BatchSize int
	Email     string
	Profile   types.Profile
}

type OutputUpload struct {
	InputID   int64  `json:"inputId"`
	UploadURI string `json:"uploadUri"`
}

type BatchResponse struct {
	BatchID uuid.UUID      `json:"batchId"`
	Inputs  []*types.Input `json:"inputs"`
	Outputs []OutputUpload `json:"outputs"`
}

type UploadResult struct {
	OutputID int64 `json:"outputId"`
}

// BatchService is the request-level facade over leasing, ingestion and cancellation.
type BatchService interface {
	NewBatch(ctx context.Context, req NewBatchRequest) (*BatchResponse, error)
	UploadOutput(ctx context.Context, inputID int64, email string, body io.Reader) (*UploadResult, error)
	Cancel(ctx context.Context, email string, inputIDs []int64) (int, error)
}

type batchService struct {
	log       *logger.Logger
	identity  IdentityDirectory
	quota     QuotaGuard
	leases    LeaseManager
	uris      URIResolver
	ingester  ResultIngester
	notifier  NotificationDispatcher
	canceller CancellationHandler
	store     ObjectStore
	metrics   *observability.Metrics
	cfg       BatchConfig
}

func NewBatchService(
	baseLog *logger.Logger,
	identity IdentityDirectory,
	quota QuotaGuard,
	leases LeaseManager,
	uris URIResolver,
	ingester ResultIngester,
	notifier NotificationDispatcher,
	canceller CancellationHandler,
	store ObjectStore,
	metrics *observability.Metrics,
	cfg BatchConfig,
) BatchService {
	if cfg.UploadURITTL <= 0 {
		cfg.UploadURITTL = defaultUploadURITTL
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	return &batchService{
		log:       baseLog.With("service", "BatchService"),
		identity:  identity,
		quota:     quota,
		leases:    leases,
		uris:      uris,
		ingester:  ingester,
		notifier:  notifier,
		canceller: canceller,
		store:     store,
		metrics:   metrics,
		cfg:       cfg,
	}
}

func (s *batchService) validateNewBatch(req NewBatchRequest) error {
	if req.BatchSize <= 0 || (s.cfg.MaxBatchSize > 0 && req.BatchSize > s.cfg.MaxBatchSize) {
		return validationf("", "Invalid batch size %d", req.BatchSize)
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || utf8.RuneCountInString(email) > 100 {
		return validationf("email", "is invalid")
	}
	p := req.Profile.Normalize()
	for _, f := range []struct {
		name  string
		value string
	}{
		{"fullName", p.FullName},
		{"teamName", p.TeamName},
		{"companyName", p.CompanyName},
		{"location", p.Location},
	} {
		if f.value == "" || utf8.RuneCountInString(f.value) > 50 {
			return validationf(f.name, "is invalid")
		}
	}
	if !countries.IsValid(p.CountryCode) {
		return validationf("countryCode", "is not valid")
	}
	return nil
}

func (s *batchService) NewBatch(ctx context.Context, req NewBatchRequest) (*BatchResponse, error) {
	if err := s.validateNewBatch(req); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}

	client, err := s.identity.ResolveOrCreate(dbc, req.Email, req.Profile)
	if err != nil {
		return nil, err
	}
	size, err := s.quota.CapBatchSize(dbc, client, req.BatchSize)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			s.metrics.IncQuotaRejected()
		}
		return nil, err
	}

	label := uuid.New()
	inputs, err := s.leases.Lease(dbc, label, size, client, s.cfg.MinInputID)
	if err != nil {
		if errors.Is(err, ErrNoInputsAvailable) {
			s.metrics.IncPoolExhausted()
			s.log.Error("No more available inputs", "batch_size", size, "min_input_id", s.cfg.MinInputID, "client_id", client.ID)
		}
		return nil, err
	}

	outputs := make([]OutputUpload, 0, len(inputs))
	for _, in := range inputs {
		in.StorageURI = s.uris.ResolveReadURI(in.StorageKey)
		uri, err := s.uris.IssueWriteURI(ctx, UploadKey(in.ID), s.cfg.UploadURITTL, WritePermissions)
		if err != nil {
			s.releaseLeased(ctx, inputs, client)
			return nil, storageErr("issue upload uri", err)
		}
		outputs = append(outputs, OutputUpload{InputID: in.ID, UploadURI: uri})
	}

	s.metrics.IncBatchDelivered(len(inputs))
	s.log.Info("Batch delivered", "batch_id", label.String(), "client_id", client.ID, "email", client.Email, "size", len(inputs))
	return &BatchResponse{BatchID: label, Inputs: inputs, Outputs: outputs}, nil
}

// releaseLeased hands a batch back to the pool when its response cannot be built.
func (s *batchService) releaseLeased(ctx context.Context, inputs []*types.Input, client *types.Client) {
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ID)
	}
	if _, err := s.canceller.Cancel(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, ids, client); err != nil {
		s.log.Error("Failed to release undeliverable batch", "client_id", client.ID, "input_ids", ids, "error", err)
	}
}

func (s *batchService) UploadOutput(ctx context.Context, inputID int64, email string, body io.Reader) (*UploadResult, error) {
	email = types.NormalizeEmail(email)
	if email == "" {
		return nil, validationf("email", "is required")
	}
	if body == nil {
		return nil, fmt.Errorf("%w: result is required", ErrMalformedOutput)
	}

	dir, err := os.MkdirTemp(s.cfg.TempDir, "output-*")
	if err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.log.Warn("Failed to remove spool dir", "dir", dir, "error", rmErr)
		}
	}()

	spool, err := os.Create(filepath.Join(dir, fmt.Sprintf("%d.json", inputID)))
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	defer spool.Close()

	n, err := io.Copy(spool, io.LimitReader(body, s.cfg.MaxOutputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedOutput, err)
	}
	if n > s.cfg.MaxOutputBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedOutput, s.cfg.MaxOutputBytes)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spool file: %w", err)
	}

	var content types.OutputContent
	if err := json.NewDecoder(spool).Decode(&content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if strings.TrimSpace(content.LC) == "" {
		return nil, fmt.Errorf("%w: lc is required", ErrMalformedOutput)
	}

	outcome, err := s.ingester.Ingest(dbctx.Context{Ctx: ctx}, inputID, email, content)
	if err != nil {
		return nil, err
	}
	s.metrics.IncOutputUploaded(outcome.First)

	if outcome.First {
		s.notifier.Notify(ctx, outcome.Input, outcome.Client, outcome.Result)
	} else {
		s.log.Warn("Result overwritten; notification suppressed", "input_id", inputID, "output_id", outcome.Result.ID)
	}

	if s.cfg.ArchiveOutputs {
		s.archive(ctx, spool, inputID)
	}
	return &UploadResult{OutputID: outcome.Result.ID}, nil
}

func (s *batchService) archive(ctx context.Context, spool *os.File, inputID int64) {
	if s.store == nil || s.cfg.OutputsBucket == "" {
		return
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		s.log.Warn("Output archive skipped", "input_id", inputID, "error", err)
		return
	}
	key := ArchiveKey(inputID)
	if err := s.store.Upload(ctx, s.cfg.OutputsBucket, key, spool); err != nil {
		s.log.Warn("Output archive failed", "input_id", inputID, "key", key, "error", err)
		return
	}
	s.log.Debug("Output archived", "input_id", inputID, "key", key)
}

func (s *batchService) Cancel(ctx context.Context, email string, inputIDs []int64) (int, error) {
	email = types.NormalizeEmail(email)
	if email == "" {
		return 0, validationf("email", "is required")
	}
	if len(inputIDs) == 0 {
		return 0, validationf("inputIds", "is required")
	}
	dbc := dbctx.Context{Ctx: ctx}

	client, err := s.identity.Lookup(dbc, email)
	if err != nil {
		return 0, err
	}
	n, err := s.canceller.Cancel(dbc, inputIDs, client)
	if err != nil {
		return 0, err
	}
	s.metrics.AddInputsCancelled(n)
	return n, nil
}
