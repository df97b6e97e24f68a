package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// Store is an S3-compatible object store (AWS S3 or MinIO). Buckets are
// passed per call so one client serves both inputs and outputs.
type Store struct {
	log     *logger.Logger
	client  *s3.Client
	presign *s3.PresignClient
	region  string
	baseURL *url.URL
}

type Config struct {
	Region          string
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	AccessKeyID     string // optional; default credential chain otherwise
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Store, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	var base *url.URL
	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid S3_ENDPOINT=%q", cfg.Endpoint)
		}
		base = u
	}

	serviceLog := log.With("service", "S3Store")
	serviceLog.Info("Object storage initialized", "mode", "s3", "region", region, "endpoint", cfg.Endpoint, "path_style", cfg.PathStyle)

	return newStore(serviceLog, client, region, base), nil
}

func newStore(log *logger.Logger, client *s3.Client, region string, base *url.URL) *Store {
	return &Store{
		log:     log,
		client:  client,
		presign: s3.NewPresignClient(client),
		region:  region,
		baseURL: base,
	}
}

func (s *Store) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if strings.TrimSpace(bucket) == "" {
		return errors.New("bucket name required")
	}
	input := &s3.PutObjectInput{Bucket: aws.String(bucket), Key: aws.String(key), Body: r}
	if ct := contentTypeForKey(key); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3 object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// SignedPutURL presigns a PutObject request; the URL grants nothing but PUT of key.
func (s *Store) SignedPutURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(bucket) == "" {
		return "", errors.New("bucket name required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	out, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) { po.Expires = ttl })
	if err != nil {
		return "", fmt.Errorf("presign put %s/%s: %w", bucket, key, err)
	}
	return out.URL, nil
}

func (s *Store) ObjectURL(bucket, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.baseURL != nil {
		base := strings.TrimRight(s.baseURL.String(), "/")
		return fmt.Sprintf("%s/%s/%s", base, bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.region, key)
}

func (s *Store) Close() error { return nil }

func contentTypeForKey(key string) string {
	k := strings.ToLower(key)
	switch {
	case strings.HasSuffix(k, ".json"):
		return "application/json"
	case strings.HasSuffix(k, ".txt"):
		return "text/plain"
	default:
		return ""
	}
}
