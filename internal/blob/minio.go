package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds S3-compatible object storage configuration
type MinioConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Region       string
	BucketPrefix string // bucket name is prefix + category
}

// MinioStore keeps each category in its own bucket
type MinioStore struct {
	client *minio.Client
	config MinioConfig
	logger *slog.Logger
}

func NewMinioStore(cfg MinioConfig, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	return &MinioStore{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Bucket returns the bucket backing a category
func (s *MinioStore) Bucket(category Category) string {
	return s.config.BucketPrefix + string(category)
}

// EnsureBuckets creates any missing category bucket
func (s *MinioStore) EnsureBuckets(ctx context.Context) error {
	for _, category := range Categories {
		bucket := s.Bucket(category)

		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}

		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		s.logger.Info("Created bucket", slog.String("bucket", bucket))
	}
	return nil
}

func (s *MinioStore) locate(ref string) (string, string, error) {
	category, name, err := SplitRef(ref)
	if err != nil {
		return "", "", err
	}
	return s.Bucket(category), name, nil
}

func (s *MinioStore) Upload(ctx context.Context, ref string, r io.Reader, opts UploadOptions) (Object, error) {
	bucket, name, err := s.locate(ref)
	if err != nil {
		return Object{}, err
	}

	size := opts.Size
	if size == 0 {
		size = -1
	}

	info, err := s.client.PutObject(ctx, bucket, name, r, size, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", ref, err)
	}

	return Object{Ref: ref, Size: info.Size, Location: fmt.Sprintf("s3://%s/%s", bucket, name)}, nil
}

func (s *MinioStore) Download(ctx context.Context, ref string) (io.ReadCloser, error) {
	bucket, name, err := s.locate(ref)
	if err != nil {
		return nil, err
	}

	// GetObject is lazy; stat first so a missing key surfaces here
	if _, err := s.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{}); err != nil {
		return nil, s.mapError(ref, err)
	}

	obj, err := s.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(ref, err)
	}
	return obj, nil
}

func (s *MinioStore) Stat(ctx context.Context, ref string) (Object, error) {
	bucket, name, err := s.locate(ref)
	if err != nil {
		return Object{}, err
	}

	info, err := s.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, s.mapError(ref, err)
	}
	return Object{Ref: ref, Size: info.Size, Location: fmt.Sprintf("s3://%s/%s", bucket, name)}, nil
}

func (s *MinioStore) SignedURL(ctx context.Context, ref string, ttl time.Duration, downloadName string) (string, error) {
	bucket, name, err := s.locate(ref)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}

	u, err := s.client.PresignedGetObject(ctx, bucket, name, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ref, err)
	}
	return u.String(), nil
}

func (s *MinioStore) mapError(ref string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return fmt.Errorf("object %s: %w", ref, err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
