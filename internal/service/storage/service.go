package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/pkg/config"
	"streamchat-backend/pkg/logger"
)

// objectAPI is the subset of *minio.Client used for attachments
type objectAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// AttachmentStore keeps message attachments in a MinIO bucket behind a circuit breaker
type AttachmentStore struct {
	api     objectAPI
	bucket  string
	breaker *circuitBreaker
}

// NewAttachmentStore connects to MinIO and makes sure the bucket exists
func NewAttachmentStore(ctx context.Context, cfg config.MinIOConfig) (*AttachmentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("Created attachment bucket", zap.String("bucket", cfg.Bucket))
	}

	return newAttachmentStore(client, cfg.Bucket, DefaultCircuitBreakerConfig()), nil
}

func newAttachmentStore(api objectAPI, bucket string, breakerConfig *CircuitBreakerConfig) *AttachmentStore {
	return &AttachmentStore{
		api:     api,
		bucket:  bucket,
		breaker: newCircuitBreaker(breakerConfig),
	}
}

// do runs op with the per-operation timeout and records the outcome. Missing objects
// are a caller error and do not count against the breaker.
func (s *AttachmentStore) do(ctx context.Context, op func(ctx context.Context) error) error {
	if !s.breaker.allow() {
		return ErrCircuitOpen
	}

	opCtx, cancel := context.WithTimeout(ctx, s.breaker.config.Timeout)
	defer cancel()

	err := op(opCtx)
	if isNotFound(err) {
		s.breaker.record(nil)
		return domain.ErrObjectNotFound
	}
	s.breaker.record(err)
	return err
}

// Upload stores an object
func (s *AttachmentStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.api.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectName, err)
	}
	return nil
}

// Rename moves an object by copying it and removing the source
func (s *AttachmentStore) Rename(ctx context.Context, from, to string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.api.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: to},
			minio.CopySrcOptions{Bucket: s.bucket, Object: from})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", from, to, err)
	}

	if err := s.Remove(ctx, from); err != nil {
		logger.FromContext(ctx).Warn("Failed to remove renamed object source",
			zap.String("object", from),
			zap.Error(err))
	}
	return nil
}

// Open returns a reader over an object and its metadata. The caller closes the reader.
func (s *AttachmentStore) Open(ctx context.Context, objectName string) (io.ReadCloser, *domain.ObjectInfo, error) {
	var stat minio.ObjectInfo
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		stat, err = s.api.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to stat %s: %w", objectName, err)
	}

	// GetObject is lazy; the read happens while streaming the response, outside the
	// operation timeout
	object, err := s.api.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", objectName, err)
	}

	return object, &domain.ObjectInfo{
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

// Remove deletes an object. Removing a missing object succeeds.
func (s *AttachmentStore) Remove(ctx context.Context, objectName string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		return s.api.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	})
	if err != nil && !errors.Is(err, domain.ErrObjectNotFound) {
		return fmt.Errorf("failed to remove %s: %w", objectName, err)
	}
	return nil
}

// State returns the circuit breaker state, for health reporting
func (s *AttachmentStore) State() CircuitBreakerState {
	return s.breaker.State()
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}
