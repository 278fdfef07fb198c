// Package s3 provides the cloud archive backend for backfill over the S3 API.
//
// Any S3-compatible store works: AWS S3, MinIO, LocalStack, Cloudflare R2.
//
// # Contract
//
//   - Resolve: HeadObject on the prefixed key; missing objects report
//     backfill.ErrNotFound, any other failure is returned wrapped.
//   - Refresh: re-issues HeadObject and records size, ETag and modification time.
//   - Open: GetObject pinned to the refreshed ETag with If-Match, so a stream
//     never mixes two generations of an object.
//   - Download: streams GetObject into a temp file beside the destination,
//     then renames it into place.
//
// The backend is read-only: it never writes to the bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/pithecene-io/backfill/backfill"
)

// API is the part of *s3.Client the backend calls. MockS3Client
// implements it for tests.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket holds the archived releases. Required.
	Bucket string

	// Prefix is prepended to every archive key. A trailing slash is added
	// when missing.
	Prefix string

	// Logger receives lookup diagnostics. Default: zap.NewNop().
	Logger *zap.Logger
}

// Backend implements backfill.Backend using an S3-compatible object store.
type Backend struct {
	client API
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates a new S3 backend with the given client and configuration.
//
// client carries credentials, region and endpoint; see NewClient.
func New(client API, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Factory returns a backfill.CloudFactory that builds an S3 client from
// clientCfg on first use.
func Factory(clientCfg ClientConfig, prefix string, logger *zap.Logger) backfill.CloudFactory {
	return func(ctx context.Context, bucket string) (backfill.Backend, error) {
		client, err := NewClient(ctx, clientCfg)
		if err != nil {
			return nil, fmt.Errorf("s3: create client: %w", err)
		}
		b, err := New(client, Config{Bucket: bucket, Prefix: prefix, Logger: logger})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Bucket returns the bucket this backend reads from.
func (b *Backend) Bucket() string { return b.bucket }

// Resolve returns the blob stored under name.
// Returns backfill.ErrNotFound if the object does not exist.
// Returns backfill.ErrInvalidPath for empty or escaping names.
func (b *Backend) Resolve(ctx context.Context, name string) (backfill.Blob, error) {
	fullKey, err := b.validateKey(name)
	if err != nil {
		return nil, err
	}

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			b.logger.Info("archive object does not exist",
				zap.String("bucket", b.bucket), zap.String("key", fullKey))
			return nil, backfill.ErrNotFound
		}
		return nil, fmt.Errorf("s3: head object: %w", err)
	}

	return &Blob{
		backend: b,
		name:    name,
		key:     fullKey,
		attrs:   headAttrs(out),
	}, nil
}

// validateKey maps a blob name to its full object key.
func (b *Backend) validateKey(name string) (string, error) {
	key := strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || key == "" || strings.HasPrefix(path.Clean(name), "..") {
		return "", backfill.ErrInvalidPath
	}
	return b.prefix + key, nil
}

// -----------------------------------------------------------------------------
// Blob
// -----------------------------------------------------------------------------

// Blob is a handle to one S3 object.
type Blob struct {
	backend *Backend
	name    string
	key     string
	attrs   backfill.BlobAttrs
}

// Name returns the blob name relative to the backend prefix.
func (o *Blob) Name() string { return o.name }

// Key returns the full object key.
func (o *Blob) Key() string { return o.key }

// Attrs returns the metadata recorded at resolve or the last Refresh.
func (o *Blob) Attrs() backfill.BlobAttrs { return o.attrs }

// Refresh reloads the object metadata.
func (o *Blob) Refresh(ctx context.Context) error {
	out, err := o.backend.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.backend.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		if isNotFound(err) {
			return backfill.ErrNotFound
		}
		return fmt.Errorf("s3: head object: %w", err)
	}
	o.attrs = headAttrs(out)
	return nil
}

// Open streams the object content through a read buffer of chunkSize bytes.
// The read is pinned to the ETag recorded by the last Refresh.
func (o *Blob) Open(ctx context.Context, chunkSize int) (io.ReadCloser, error) {
	body, err := o.get(ctx)
	if err != nil {
		return nil, err
	}
	o.backend.logger.Info("streaming archive object",
		zap.String("bucket", o.backend.bucket),
		zap.String("key", o.key),
		zap.Int64("size", o.attrs.Size),
	)
	return backfill.NewBufferedReadCloser(body, chunkSize), nil
}

// Download copies the object content to the local file dst.
func (o *Blob) Download(ctx context.Context, dst string) error {
	body, err := o.get(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	o.backend.logger.Info("downloading archive object",
		zap.String("bucket", o.backend.bucket),
		zap.String("key", o.key),
		zap.String("dst", dst),
	)
	if err := backfill.WriteFileAtomic(dst, body); err != nil {
		return fmt.Errorf("s3: download %s: %w", o.key, err)
	}
	return nil
}

func (o *Blob) get(ctx context.Context) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(o.backend.bucket),
		Key:    aws.String(o.key),
	}
	if o.attrs.ETag != "" {
		in.IfMatch = aws.String(o.attrs.ETag)
	}

	out, err := o.backend.client.GetObject(ctx, in)
	if err != nil {
		if isNotFound(err) {
			return nil, backfill.ErrNotFound
		}
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("s3: object %s changed since refresh: %w", o.key, err)
		}
		return nil, fmt.Errorf("s3: get object: %w", err)
	}
	return out.Body, nil
}

func headAttrs(out *s3.HeadObjectOutput) backfill.BlobAttrs {
	return backfill.BlobAttrs{
		Size:    aws.ToInt64(out.ContentLength),
		ETag:    aws.ToString(out.ETag),
		Updated: aws.ToTime(out.LastModified),
	}
}

// isNotFound reports whether err means the key does not exist.
// A missing bucket is a configuration fault, not absence.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// isPreconditionFailed checks for a failed If-Match condition.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "412"
	}
	return false
}
