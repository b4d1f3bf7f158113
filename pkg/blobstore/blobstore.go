// Package blobstore is the object-store gateway. Content-addressed blobs are
// PUT under their hex digest into a flat bucket namespace; a repeated PUT of
// the same key overwrites identical bytes, so uploads are idempotent.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"

	"github.com/casmirror/casmirror/internal/logger"
	"github.com/casmirror/casmirror/internal/telemetry"
)

// Metrics is an optional collector for store operations. A nil Metrics means
// zero overhead.
type Metrics interface {
	// ObserveOperation records an operation with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred
	RecordBytes(operation string, bytes int64)
}

// Config contains configuration for the blob store.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name. It must already exist; the store
	// verifies access at construction but never creates it.
	Bucket string

	// MaxRetries is the maximum number of retry attempts for transient
	// errors (default: 3). The uploader's queue provides the durable
	// retry path; this only smooths over short network blips.
	MaxRetries uint

	// InitialBackoff is the backoff before the first retry (default: 1s)
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff (default: 60s)
	MaxBackoff time.Duration

	// Metrics is an optional metrics collector
	Metrics Metrics
}

// Store uploads and deletes content-addressed blobs.
type Store struct {
	client  *s3.Client
	bucket  string
	retry   retryConfig
	metrics Metrics
}

type retryConfig struct {
	maxRetries     uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewClientFromConfig creates an S3 client from configuration parameters.
// An empty endpoint selects AWS proper; custom endpoints (MinIO and
// friends) usually need forcePathStyle.
func NewClientFromConfig(
	ctx context.Context,
	endpoint,
	region,
	accessKeyID,
	secretAccessKey string,
	forcePathStyle bool,
) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"", // session token (empty for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// New creates a new blob store and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 60 * time.Second
	}

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		metrics: cfg.Metrics,
		retry: retryConfig{
			maxRetries:     maxRetries,
			initialBackoff: initialBackoff,
			maxBackoff:     maxBackoff,
		},
	}, nil
}

// Bucket returns the bucket this store writes to.
func (s *Store) Bucket() string {
	return s.bucket
}

// Put uploads a blob under the given key with the given content type.
// Transient errors are retried with exponential backoff and jitter;
// permanent errors (4xx, cancellation) fail immediately.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStoragePut, key,
		telemetry.Bucket(s.bucket),
		telemetry.Size(int64(len(data))))
	defer span.End()

	start := time.Now()
	var err error
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("PutObject", time.Since(start), err)
			if err == nil {
				s.metrics.RecordBytes("put", int64(len(data)))
			}
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	attempt := 0
	op := func() error {
		attempt++
		// The reader must be rewound for every attempt
		input.Body = bytes.NewReader(data)

		_, putErr := s.client.PutObject(ctx, input)
		if putErr == nil {
			return nil
		}
		if !isRetryableError(putErr) {
			return backoff.Permanent(putErr)
		}
		logger.Debug("blob put retrying after transient error",
			logger.KeyKey, key,
			logger.KeyAttempt, attempt,
			logger.KeyError, putErr.Error())
		return putErr
	}

	if err = backoff.Retry(op, s.newBackOff(ctx)); err != nil {
		return fmt.Errorf("failed to put blob %s after %d attempts: %w", key, attempt, err)
	}
	return nil
}

// Delete removes a blob. Deleting an absent key is not an error in S3, so
// Delete is idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageDelete, key,
		telemetry.Bucket(s.bucket))
	defer span.End()

	start := time.Now()
	var err error
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("DeleteObject", time.Since(start), err)
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	op := func() error {
		_, delErr := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if delErr == nil {
			return nil
		}
		if !isRetryableError(delErr) {
			return backoff.Permanent(delErr)
		}
		return delErr
	}

	if err = backoff.Retry(op, s.newBackOff(ctx)); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// newBackOff builds the per-operation retry policy: exponential with
// jitter, capped, bounded by retry count and the caller's context.
func (s *Store) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.initialBackoff
	eb.MaxInterval = s.retry.maxBackoff
	eb.MaxElapsedTime = 0 // bounded by retry count, not wall clock
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.retry.maxRetries)), ctx)
}

// httpStatusCoder is implemented by AWS SDK response errors.
type httpStatusCoder interface {
	HTTPStatusCode() int
}

// isRetryableError reports whether an S3 error is worth retrying.
// Client-side errors (4xx except throttling) and context cancellation are
// permanent; everything else (network failures, 5xx) is transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sc httpStatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		if code == 429 {
			return true
		}
		if code >= 400 && code < 500 {
			return false
		}
	}

	return true
}
