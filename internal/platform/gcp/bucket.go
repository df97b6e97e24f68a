package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/objectstore"
)

// BucketService is the GCS (or fake-gcs emulator) backed object store.
type BucketService interface {
	ObjectURL(bucket, key string) string
	SignedPutURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
	Close() error
}

type BucketConfig struct {
	Storage objectstore.Config

	// PublicBaseURL overrides the host used for object URLs, e.g. http://localhost:4443
	// when the emulator is reachable from clients under a different name.
	PublicBaseURL string
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   objectstore.Mode
	emulatorHost  string
	publicBaseURL string
}

func NewBucketService(log *logger.Logger, cfg BucketConfig) (BucketService, error) {
	if err := objectstore.ValidateConfig(cfg.Storage); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "BucketService")

	publicBaseURL, publicBaseSource, err := resolvePublicBaseURL(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Storage.Mode,
		"mode_source", cfg.Storage.ModeSource(),
		"emulator_host", cfg.Storage.EmulatorHost,
		"public_base_source", publicBaseSource,
		"public_base_url", publicBaseURL,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   cfg.Storage.Mode,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/"),
		publicBaseURL: publicBaseURL,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg objectstore.Config) (*storage.Client, error) {
	switch storageCfg.Mode {
	case objectstore.ModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case objectstore.ModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &objectstore.ConfigError{
			Code: objectstore.ConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func resolvePublicBaseURL(cfg BucketConfig) (baseURL string, source string, err error) {
	raw := strings.TrimSpace(cfg.PublicBaseURL)
	if raw != "" {
		parsed, parseErr := url.Parse(raw)
		if parseErr != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
			return "", "", fmt.Errorf(
				"invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443",
				raw,
			)
		}
		return strings.TrimRight(raw, "/"), "object_storage_public_base_url", nil
	}

	if cfg.Storage.IsEmulatorMode() {
		return strings.TrimRight(strings.TrimSpace(cfg.Storage.EmulatorHost), "/"), "storage_emulator_host", nil
	}

	return "", "gcs_default", nil
}

func (bs *bucketService) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if strings.TrimSpace(bucket) == "" {
		return errors.New("bucket name required")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// SignedPutURL issues a V4 signed URL that only permits PUT of key for ttl.
// The emulator does not verify signatures, so it gets a plain XML-API object URL.
func (bs *bucketService) SignedPutURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(bucket) == "" {
		return "", errors.New("bucket name required")
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if bs.storageMode == objectstore.ModeGCSEmulator {
		base := bs.publicBaseURL
		if base == "" {
			base = bs.emulatorHost
		}
		return fmt.Sprintf("%s/%s/%s", base, url.PathEscape(bucket), escapeKeyPath(key)), nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u, err := bs.storageClient.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "PUT",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign PUT url for %s/%s: %w", bucket, key, err)
	}
	return u, nil
}

func (bs *bucketService) ObjectURL(bucket, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if bs.storageMode == objectstore.ModeGCSEmulator {
		if u := bs.emulatorObjectMediaURL(bucket, key); u != "" {
			return u
		}
	}
	if bs.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", bs.publicBaseURL, bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}

func (bs *bucketService) emulatorObjectMediaURL(bucket, key string) string {
	base := strings.TrimRight(strings.TrimSpace(bs.publicBaseURL), "/")
	if base == "" {
		base = strings.TrimRight(strings.TrimSpace(bs.emulatorHost), "/")
	}
	if base == "" {
		return ""
	}
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		base,
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}

func (bs *bucketService) Close() error {
	if bs == nil || bs.storageClient == nil {
		return nil
	}
	return bs.storageClient.Close()
}

func escapeKeyPath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain"
	case strings.HasSuffix(s, ".npz"), strings.HasSuffix(s, ".fits"):
		return "application/octet-stream"
	default:
		return ""
	}
}
