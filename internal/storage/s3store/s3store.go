// Package s3store publishes artifacts to an S3-compatible bucket such as IBM
// Cloud Object Storage.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/storage"
)

var _ storage.Backend = (*Backend)(nil)

// Config locates the bucket. Endpoint may carry an http:// or https://
// scheme; without one TLS is used.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	// PublicBaseURL overrides the virtual-hosted URL returned by Put.
	PublicBaseURL string
}

type Backend struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// New creates the client. No request is made until the first Put.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}

	host, secure := splitEndpoint(cfg.Endpoint)
	if host == "" {
		return nil, fmt.Errorf("s3store: endpoint is required")
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.%s", cfg.Bucket, host)
	}

	return &Backend{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Put uploads data and returns its public URL.
func (b *Backend) Put(ctx context.Context, data []byte, objectName, folder string) (string, error) {
	key := storage.ObjectKey(folder, objectName)

	info, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: storage.ContentType(objectName),
	})
	if err != nil {
		return "", &domain.StorageError{Object: key, Err: err}
	}

	b.logger.Debug("uploaded object", "bucket", b.bucket, "key", key, "etag", info.ETag, "size", info.Size)
	return b.baseURL + "/" + key, nil
}

func (b *Backend) Close() error {
	return nil
}

func splitEndpoint(endpoint string) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimRight(strings.TrimPrefix(endpoint, "http://"), "/"), false
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimRight(strings.TrimPrefix(endpoint, "https://"), "/"), true
	default:
		return strings.TrimRight(endpoint, "/"), true
	}
}
