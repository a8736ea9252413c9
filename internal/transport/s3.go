package transport

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	beaconerrors "github.com/beaconlabs/beacon/internal/errors"
)

// S3Transport drops serialized batches into an S3 bucket, for collection
// pipelines that ingest from object storage instead of an HTTP endpoint.
// A bucket drop has no server-side acknowledgement, so a successful put
// acknowledges the whole batch.
type S3Transport struct {
	client     *s3.Client
	bucket     string
	prefix     string
	maxRetries int
}

// S3Config holds configuration for the S3 transport.
type S3Config struct {
	// Bucket is the destination bucket name.
	Bucket string
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// Prefix is the object key prefix for uploaded batches.
	Prefix string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// NewS3Transport creates an S3 transport using the default AWS credential
// chain.
func NewS3Transport(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3TransportWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewS3TransportWithClient creates an S3 transport with a pre-configured
// client.
func NewS3TransportWithClient(client *s3.Client, cfg S3Config) *S3Transport {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "batches"
	}
	return &S3Transport{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     prefix,
		maxRetries: 3,
	}
}

func (t *S3Transport) Post(ctx context.Context, req Request) Result {
	key := fmt.Sprintf("%s/%s-%s.json", t.prefix, req.UploadTime, req.Checksum)

	err := t.retryWithBackoff(ctx, func() error {
		_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(t.bucket),
			Key:         aws.String(key),
			Body:        strings.NewReader(req.Events),
			ContentType: aws.String("application/json"),
		})
		return err
	})
	if err != nil {
		return Result{Status: StatusError, Err: beaconerrors.NewTransportError(
			beaconerrors.CodePostFailed, "failed to put batch object", err)}
	}

	return Result{Status: StatusSuccess, Added: req.Count}
}

// retryWithBackoff executes the operation with exponential backoff retry.
func (t *S3Transport) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if attempt < t.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
