package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/mikeyg42/sketch-detector/internal/config"
)

// MinIOSaver uploads artifacts to a MinIO bucket
type MinIOSaver struct {
	client     *minio.Client
	bucket     string
	logger     *zap.Logger
	config     config.MinIOConfig
	uploadPool chan struct{}

	uploads      atomic.Uint64
	uploadBytes  atomic.Uint64
	uploadErrors atomic.Uint64
}

// NewMinIOSaver connects to MinIO and makes sure the bucket exists
func NewMinIOSaver(ctx context.Context, cfg config.MinIOConfig) (*MinIOSaver, error) {
	if cfg.MaxUploads <= 0 {
		cfg.MaxUploads = 4
	}
	if cfg.RequestTimeout.Duration <= 0 {
		cfg.RequestTimeout = config.Seconds(300)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &MinIOSaver{
		client:     client,
		bucket:     cfg.Bucket,
		logger:     zap.L().Named("minio-store"),
		config:     cfg,
		uploadPool: make(chan struct{}, cfg.MaxUploads),
	}
	for i := 0; i < cfg.MaxUploads; i++ {
		s.uploadPool <- struct{}{}
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		s.logger.Info("Created MinIO bucket", zap.String("bucket", cfg.Bucket))
	}

	return s, nil
}

// Save uploads data with retry
func (s *MinIOSaver) Save(ctx context.Context, a Artifact, data []byte) (string, error) {
	if err := validateArtifact(a); err != nil {
		return "", &StorageError{Op: "put", Key: a.Key, Err: err}
	}

	select {
	case <-s.uploadPool:
		defer func() { s.uploadPool <- struct{}{} }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout.Duration)
	defer cancel()

	opts := minio.PutObjectOptions{
		ContentType: a.ContentType,
		UserMetadata: map[string]string{
			"artifact-id":   a.ID,
			"artifact-kind": a.Kind,
			"artifact-name": a.Name,
		},
	}

	var status int
	op := func() error {
		// fresh reader per attempt
		info, err := s.client.PutObject(ctx, s.bucket, a.Key, bytes.NewReader(data), int64(len(data)), opts)
		if err != nil {
			s.uploadErrors.Add(1)
			status = getMinioStatusCode(err)
			if status == 403 || status == 400 {
				return backoff.Permanent(err)
			}
			return err
		}
		s.uploads.Add(1)
		s.uploadBytes.Add(uint64(info.Size))
		s.logger.Debug("Object uploaded",
			zap.String("key", a.Key),
			zap.Int64("size", info.Size),
			zap.String("etag", info.ETag))
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(s.newBackoff(), ctx)); err != nil {
		return "", &StorageError{
			Op:         "put",
			Key:        a.Key,
			Err:        err,
			StatusCode: status,
			Retryable:  status != 403 && status != 400,
		}
	}

	s.logger.Info("Artifact uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", a.Key),
		zap.Int("size", len(data)),
		zap.Uint64("total_uploads", s.uploads.Load()),
		zap.Uint64("total_bytes", s.uploadBytes.Load()),
		zap.Uint64("upload_errors", s.uploadErrors.Load()))
	return a.Key, nil
}

func (s *MinIOSaver) newBackoff() backoff.BackOff {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = 250 * time.Millisecond
	ebo.Reset()
	return backoff.WithMaxRetries(ebo, uint64(s.config.MaxRetries))
}

func getMinioStatusCode(err error) int {
	if errResp := minio.ToErrorResponse(err); errResp.Code != "" {
		switch errResp.Code {
		case "NoSuchKey", "NoSuchBucket":
			return 404
		case "AccessDenied":
			return 403
		case "InvalidArgument", "InvalidBucketName":
			return 400
		default:
			return 500
		}
	}
	return 500
}
