// Package minio wraps minio-go with OpenTelemetry spans and platform
// error codes. The artifact archive uses it to keep sanitized drafts of
// completed workflows.
//
//	client, err := minio.NewClient(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	_ = client.EnsureBucket(ctx)
//
// Tests inject a mock through [NewFromStore].
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

const tracerName = "github.com/StricklySoft/contentflow/pkg/clients/minio"

// ObjectStore is the subset of *minio.Client the Client uses.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

var _ ObjectStore = (*minio.Client)(nil)

// Client is a traced object storage client bound to one bucket. It is
// safe for concurrent use.
type Client struct {
	store  ObjectStore
	config *Config
	tracer trace.Tracer
}

// NewClient validates cfg, builds the minio client and probes the
// server with BucketExists.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: the server is unreachable
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "minio: invalid configuration")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "minio: failed to create client")
	}
	if _, err := mc.BucketExists(ctx, healthProbeBucket); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"minio: failed to connect to server")
	}

	return &Client{store: mc, config: &cfg, tracer: otel.Tracer(tracerName)}, nil
}

// NewFromStore wraps an existing ObjectStore. cfg may be nil, in which
// case the default bucket is used.
func NewFromStore(store ObjectStore, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &Client{store: store, config: cfg, tracer: otel.Tracer(tracerName)}
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// EnsureBucket creates the configured bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	bucket := c.config.Bucket
	ctx, span := c.startSpan(ctx, "EnsureBucket", bucket, "MAKEBUCKET "+bucket)

	exists, err := c.store.BucketExists(ctx, bucket)
	if err == nil && !exists {
		err = c.store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region})
	}
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: ensure bucket failed")
	}
	return nil
}

// PutObject uploads size bytes from reader to objectName in the
// configured bucket.
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (minio.UploadInfo, error) {
	bucket := c.config.Bucket
	ctx, span := c.startSpan(ctx, "PutObject", bucket, fmt.Sprintf("PUT %s/%s", bucket, objectName))

	info, err := c.store.PutObject(ctx, bucket, objectName, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	finishSpan(span, err)
	if err != nil {
		return info, wrapError(err, "minio: put object failed")
	}
	return info, nil
}

// StatObject returns the metadata of objectName. A missing object yields
// CodeNotFound.
func (c *Client) StatObject(ctx context.Context, objectName string) (minio.ObjectInfo, error) {
	bucket := c.config.Bucket
	ctx, span := c.startSpan(ctx, "StatObject", bucket, fmt.Sprintf("STAT %s/%s", bucket, objectName))

	info, err := c.store.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey" {
		finishSpan(span, nil)
		return info, sserr.Wrapf(err, sserr.CodeNotFound, "minio: object %q not found", objectName)
	}
	finishSpan(span, err)
	if err != nil {
		return info, wrapError(err, "minio: stat object failed")
	}
	return info, nil
}

// PresignedURL returns a time-limited download link for objectName.
func (c *Client) PresignedURL(ctx context.Context, objectName string, expires time.Duration) (*url.URL, error) {
	bucket := c.config.Bucket
	ctx, span := c.startSpan(ctx, "PresignedGetObject", bucket, fmt.Sprintf("PRESIGN GET %s/%s", bucket, objectName))

	u, err := c.store.PresignedGetObject(ctx, bucket, objectName, expires, nil)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "minio: presign failed")
	}
	return u, nil
}

// Health probes the server with BucketExists, applying
// [DefaultHealthTimeout] when ctx has no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "", "BucketExists "+healthProbeBucket)
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	_, err := c.store.BucketExists(ctx, healthProbeBucket)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "minio: health check failed")
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, operationName, bucketName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "minio."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", bucketName),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
