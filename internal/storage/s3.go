package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/me/stagehand/pkg/uri"
)

// S3Adapter serves s3:// URIs using the AWS SDK.
type S3Adapter struct {
	client   *s3.Client
	uploader *manager.Uploader
	retry    RetryPolicy
	logger   *slog.Logger
}

// NewS3Adapter creates an S3 adapter from the ambient AWS credential
// chain (env, shared config, instance role).
func NewS3Adapter(ctx context.Context, retry RetryPolicy, logger *slog.Logger) (*S3Adapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewS3AdapterWithClient(client, retry, logger), nil
}

// NewS3AdapterWithClient wraps an existing S3 client (used in tests
// against S3-compatible endpoints).
func NewS3AdapterWithClient(client *s3.Client, retry RetryPolicy, logger *slog.Logger) *S3Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &S3Adapter{
		client:   client,
		uploader: manager.NewUploader(client),
		retry:    retry,
		logger:   logger.With("component", "s3-storage"),
	}
}

func (a *S3Adapter) Kind() uri.Kind { return uri.S3 }

// Exists probes with HeadObject, retrying transient failures. Missing
// objects and exhausted retries both report false; only the latter is
// logged with its cause.
func (a *S3Adapter) Exists(ctx context.Context, u uri.URI) bool {
	bucket, key := splitBucketKey(u)

	var found bool
	err := a.retry.Do(ctx, func() error {
		_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			found = true
			return nil
		}
		if isS3NotFound(err) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		a.logger.Warn("existence probe failed, treating as absent", "uri", u.String(), "error", err)
		return false
	}
	return found
}

func (a *S3Adapter) ReadText(ctx context.Context, u uri.URI) (string, error) {
	r, err := a.Open(ctx, u)
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", &ReadError{URI: u, Err: err}
	}
	return string(data), nil
}

func (a *S3Adapter) WriteText(ctx context.Context, u uri.URI, text string) error {
	return a.Put(ctx, u, strings.NewReader(text))
}

func (a *S3Adapter) Delete(ctx context.Context, u uri.URI) error {
	bucket, key := splitBucketKey(u)
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 storage: delete %s: %w", u, wrapS3Auth(err))
	}
	return nil
}

func (a *S3Adapter) Open(ctx context.Context, u uri.URI) (io.ReadCloser, error) {
	bucket, key := splitBucketKey(u)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &ReadError{URI: u, Err: wrapS3Auth(err)}
	}
	return out.Body, nil
}

// Put streams r to the object via the transfer manager, which splits
// large payloads into concurrent multipart uploads.
func (a *S3Adapter) Put(ctx context.Context, u uri.URI, r io.Reader) error {
	bucket, key := splitBucketKey(u)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3 storage: upload %s: %w", u, wrapS3Auth(err))
	}
	return nil
}

// Copy performs a server-side S3-to-S3 object copy.
func (a *S3Adapter) Copy(ctx context.Context, src, dst uri.URI) error {
	dstBucket, dstKey := splitBucketKey(dst)
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(src.Locator())),
	})
	if err != nil {
		return fmt.Errorf("s3 storage: copy %s to %s: %w", src, dst, wrapS3Auth(err))
	}
	return nil
}

// splitBucketKey splits a bucket/key locator at the first slash.
func splitBucketKey(u uri.URI) (bucket, key string) {
	loc := u.Locator()
	if i := strings.Index(loc, "/"); i >= 0 {
		return loc[:i], loc[i+1:]
	}
	return loc, ""
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

// wrapS3Auth marks credential failures so callers can surface them
// without retrying.
func wrapS3Auth(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "ExpiredToken", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %v", ErrAuthRequired, err)
		}
	}
	return err
}
