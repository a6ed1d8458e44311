// Package archive copies enriched company files to S3-compatible object
// storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/JonMunkholm/corpfetch/internal/core"
	"github.com/JonMunkholm/corpfetch/internal/logging"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config configures a MinIO archiver.
type Config struct {
	Endpoint     string // host[:port], or a URL whose scheme selects SSL
	AccessKey    string
	SecretKey    string
	Bucket       string
	Prefix       string
	Region       string
	UseSSL       bool
	CreateBucket bool
}

// objectClient is the subset of *minio.Client the archiver uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIO is a core.ArtifactArchiver writing to one bucket.
type MinIO struct {
	client objectClient
	cfg    Config
}

// New creates a MinIO archiver from cfg.
func New(cfg Config) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("archive: endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("archive: credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}

	endpoint, useSSL := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: create minio client: %w", err)
	}
	return &MinIO{client: client, cfg: cfg}, nil
}

// EnsureBucket checks the bucket exists, creating it when CreateBucket is set.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("archive: check bucket %s: %w", m.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if !m.cfg.CreateBucket {
		return fmt.Errorf("archive: bucket %s does not exist", m.cfg.Bucket)
	}
	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		return fmt.Errorf("archive: create bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// ObjectKey returns <prefix>/<city>/<district>/<runID>.csv.
func (m *MinIO) ObjectKey(a core.Artifact) string {
	return path.Join(strings.Trim(m.cfg.Prefix, "/"), a.City, a.District, a.RunID+".csv")
}

// Archive uploads the file at filePath and returns its object key.
func (m *MinIO) Archive(ctx context.Context, a core.Artifact, filePath string) (string, error) {
	key := m.ObjectKey(a)

	info, err := m.client.FPutObject(ctx, m.cfg.Bucket, key, filePath, minio.PutObjectOptions{
		ContentType:  "text/csv; charset=utf-8",
		UserMetadata: map[string]string{"run-id": a.RunID},
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", m.cfg.Bucket, key, err)
	}

	logging.FromContext(ctx).Info("artifact archived",
		"bucket", m.cfg.Bucket,
		"key", key,
		"size", info.Size,
	)
	return key, nil
}
