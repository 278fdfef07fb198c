// Package backfill resolves per-dataset resources from local storage or a
// release archive, and streams statement records out of dataset trees.
//
// Backfill focuses on resolution structure: a durable local layout, a single
// archive backend chosen once per process, and lazy record streams. It does
// not fetch from the network or publish to the archive.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Well-known dataset resource names.
const (
	StatementsFile = "statements.pack"
	IssuesLog      = "issues.log"
	IssuesFile     = "issues.json"
	ResourcesFile  = "resources.json"
	IndexFile      = "index.json"
)

// DefaultChunkSize is the read buffer used when streaming archive blobs.
const DefaultChunkSize = 40 * 1024 * 1024 // 40MB

// -----------------------------------------------------------------------------
// Dataset
// -----------------------------------------------------------------------------

// Dataset is the read-only view of a dataset consumed by this package.
//
// Leaves returns the dataset itself for a leaf dataset, or its constituent
// leaf datasets for a composite. It is never empty.
type Dataset interface {
	Name() string
	Leaves() []Dataset
}

// -----------------------------------------------------------------------------
// Blob and Backend
// -----------------------------------------------------------------------------

// BlobAttrs holds the metadata of a stored object.
type BlobAttrs struct {
	// Size is the object size in bytes.
	Size int64

	// ETag identifies the object generation. Empty when unknown.
	ETag string

	// Updated is the last modification time.
	Updated time.Time
}

// Blob is a handle to a single object in an archive backend.
//
// Blobs are owned by the backend that resolved them and are borrowed for
// the duration of one resolve/copy/stream operation.
type Blob interface {
	// Name returns the fully qualified object name.
	Name() string

	// Attrs returns the metadata recorded at resolve or the last Refresh.
	Attrs() BlobAttrs

	// Refresh reloads the object metadata. Callers must refresh a freshly
	// resolved blob before streaming it.
	Refresh(ctx context.Context) error

	// Open returns a buffered stream over the object content.
	Open(ctx context.Context, chunkSize int) (io.ReadCloser, error)

	// Download copies the object content to the local file dst.
	Download(ctx context.Context, dst string) error
}

// Backend resolves blobs by logical name.
//
// Resolve is a pure lookup. It returns ErrNotFound when the object does not
// exist; any other error is a backend failure (auth, connectivity).
type Backend interface {
	Resolve(ctx context.Context, name string) (Blob, error)
}

// CloudFactory constructs the cloud backend for a bucket.
type CloudFactory func(ctx context.Context, bucket string) (Backend, error)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a resource or blob is not available.
	ErrNotFound = errNotFound{}

	// ErrInvalidPath indicates a name that would escape its storage root.
	ErrInvalidPath = errors.New("invalid path: escapes storage root")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// ConfigurationError reports missing configuration for the selected backend.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// DecodeError reports a malformed row in a statement stream.
type DecodeError struct {
	// Line is the 1-based row number within the stream.
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode row %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
