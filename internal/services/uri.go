package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// ObjectStore is the blob capability the batch server needs from GCS or S3.
type ObjectStore interface {
	ObjectURL(bucket, key string) string
	SignedPutURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
}

// Permission is a bit set of operations a write URI may grant.
type Permission uint8

const (
	PermissionRead Permission = 1 << iota
	PermissionWrite
	PermissionCreate
)

const WritePermissions = PermissionCreate | PermissionWrite

type URIResolverConfig struct {
	InputsBucket    string
	OutputsBucket   string
	ExternalBaseURL string
}

// URIResolver turns storage keys into client-usable URIs.
type URIResolver interface {
	ResolveReadURI(storageKey string) string
	IssueWriteURI(ctx context.Context, key string, ttl time.Duration, perms Permission) (string, error)
}

type uriResolver struct {
	log           *logger.Logger
	store         ObjectStore
	inputsBucket  string
	outputsBucket string
	externalBase  string
}

func NewURIResolver(log *logger.Logger, store ObjectStore, cfg URIResolverConfig) URIResolver {
	return &uriResolver{
		log:           log.With("service", "URIResolver"),
		store:         store,
		inputsBucket:  strings.TrimSpace(cfg.InputsBucket),
		outputsBucket: strings.TrimSpace(cfg.OutputsBucket),
		externalBase:  normalizeBaseURL(cfg.ExternalBaseURL),
	}
}

// normalizeBaseURL makes a non-empty base end with exactly one "/".
func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/"
}

func (r *uriResolver) ResolveReadURI(storageKey string) string {
	if r.externalBase != "" {
		return r.externalBase + strings.TrimLeft(storageKey, "/")
	}
	if r.store == nil {
		return storageKey
	}
	return r.store.ObjectURL(r.inputsBucket, storageKey)
}

func (r *uriResolver) IssueWriteURI(ctx context.Context, key string, ttl time.Duration, perms Permission) (string, error) {
	if perms&PermissionRead != 0 || perms&WritePermissions == 0 {
		return "", fmt.Errorf("write uri for %q: unsupported permissions %03b", key, perms)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("write uri for %q: ttl must be positive", key)
	}
	if r.store == nil {
		return "", errors.New("object storage not configured")
	}
	u, err := r.store.SignedPutURL(ctx, r.outputsBucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("issue write uri for %q: %w", key, err)
	}
	return u, nil
}

// UploadKey is the object a client PUTs its processed data for inputID to.
func UploadKey(inputID int64) string { return fmt.Sprintf("%d_data.npz", inputID) }

// ArchiveKey is the object the raw result JSON for inputID is archived under.
func ArchiveKey(inputID int64) string { return fmt.Sprintf("%d_output.json", inputID) }
