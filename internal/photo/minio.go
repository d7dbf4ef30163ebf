package photo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore keeps selfies in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(ctx context.Context, cfg MinIOConfig, logger *slog.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	s := &MinIOStore{client: client, bucket: cfg.Bucket}
	created, err := s.ensureBucket(ctx)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("created photo bucket", "bucket", cfg.Bucket)
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) (bool, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return false, fmt.Errorf("checking bucket: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return false, fmt.Errorf("creating bucket: %w", err)
	}
	return true, nil
}

// Put stores the upload and returns its object URL.
func (s *MinIOStore) Put(ctx context.Context, u Upload) (string, error) {
	name := ObjectName(u.PlayerID, u.LocationID, u.ContentType)
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(u.Data), int64(len(u.Data)), minio.PutObjectOptions{
		ContentType:  u.ContentType,
		UserMetadata: u.metadata(),
	})
	if err != nil {
		return "", fmt.Errorf("uploading photo: %w", err)
	}
	return s.objectURL(name), nil
}

func (s *MinIOStore) objectURL(name string) string {
	u := url.URL{Scheme: "http", Host: s.client.EndpointURL().Host, Path: "/" + path.Join(s.bucket, name)}
	if s.client.EndpointURL().Scheme != "" {
		u.Scheme = s.client.EndpointURL().Scheme
	}
	return u.String()
}

// Ping reports whether the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
