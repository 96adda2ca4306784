// Package artifacts archives finished drafts to object storage as
// blog_<YYYY-MM-DD>_<workflow id>.md.
package artifacts

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	objstore "github.com/StricklySoft/contentflow/pkg/clients/minio"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

const (
	contentType = "text/markdown; charset=utf-8"

	// DefaultURLExpiry is how long a presigned download link is valid.
	DefaultURLExpiry = 15 * time.Minute
)

// Objects is the subset of the minio client the archive needs.
type Objects interface {
	PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (minio.UploadInfo, error)
	PresignedURL(ctx context.Context, objectName string, expires time.Duration) (*url.URL, error)
	StatObject(ctx context.Context, objectName string) (minio.ObjectInfo, error)
}

var _ Objects = (*objstore.Client)(nil)

// Archive writes drafts to a bucket.
type Archive struct {
	objects Objects
	logger  *slog.Logger
}

// New returns an Archive. A nil logger uses slog.Default().
func New(objects Objects, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{objects: objects, logger: logger}
}

var keyRe = regexp.MustCompile(`^blog_\d{4}-\d{2}-\d{2}_[A-Za-z0-9_-]+\.md$`)

// ObjectName returns the object key for a workflow's draft.
func ObjectName(workflowID string, at time.Time) string {
	return "blog_" + at.UTC().Format("2006-01-02") + "_" + workflowID + ".md"
}

// ValidKey reports whether key has the shape ObjectName produces.
func ValidKey(key string) bool {
	return keyRe.MatchString(key)
}

// Archive uploads markdown and returns its object key.
func (a *Archive) Archive(ctx context.Context, workflowID string, at time.Time, markdown string) (string, error) {
	key := ObjectName(workflowID, at)
	if !ValidKey(key) {
		return "", sserr.Newf(sserr.CodeValidationFormat, "artifacts: invalid workflow id %q", workflowID)
	}
	info, err := a.objects.PutObject(ctx, key, strings.NewReader(markdown), int64(len(markdown)), contentType)
	if err != nil {
		return "", err
	}
	a.logger.InfoContext(ctx, "draft archived",
		"workflow_id", workflowID, "key", key, "bytes", info.Size, "etag", info.ETag)
	return key, nil
}

// URL returns a presigned download link for key after checking the
// object exists. A non-positive expires uses DefaultURLExpiry.
func (a *Archive) URL(ctx context.Context, key string, expires time.Duration) (*url.URL, error) {
	if !ValidKey(key) {
		return nil, sserr.Newf(sserr.CodeValidationFormat, "artifacts: invalid key %q", key)
	}
	if expires <= 0 {
		expires = DefaultURLExpiry
	}
	if _, err := a.objects.StatObject(ctx, key); err != nil {
		return nil, err
	}
	return a.objects.PresignedURL(ctx, key, expires)
}
