package backfill

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// Filesystem Backend
// -----------------------------------------------------------------------------

// fsBackend implements Backend over a local directory that mirrors the
// archive namespace.
type fsBackend struct {
	root   string
	logger *zap.Logger
}

// NewFilesystemBackend creates a Backend rooted at the given directory.
// The directory need not exist; lookups against a missing root report
// ErrNotFound.
//
// Consistency: Immediate on local filesystems.
func NewFilesystemBackend(root string, logger *zap.Logger) Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fsBackend{root: root, logger: logger}
}

func (f *fsBackend) Resolve(_ context.Context, name string) (Blob, error) {
	fullPath, err := f.safePathForFile(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			f.logger.Info("archive file does not exist", zap.String("path", filepath.ToSlash(fullPath)))
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.logger.Info("archive path is not a file", zap.String("path", filepath.ToSlash(fullPath)))
		return nil, ErrNotFound
	}

	return &fsBlob{
		name:   name,
		path:   fullPath,
		attrs:  fileAttrs(info),
		logger: f.logger,
	}, nil
}

// safePathForFile validates and resolves a blob name, ensuring it stays within the root.
// Returns ErrInvalidPath if the name is empty or would escape the root.
func (f *fsBackend) safePathForFile(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidPath
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	fullPath := filepath.Join(f.root, cleaned)

	absRoot, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	return fullPath, nil
}

// -----------------------------------------------------------------------------
// Filesystem Blob
// -----------------------------------------------------------------------------

// fsBlob is a Blob over a plain file.
type fsBlob struct {
	name   string
	path   string
	attrs  BlobAttrs
	logger *zap.Logger
}

func (b *fsBlob) Name() string { return b.name }

func (b *fsBlob) Attrs() BlobAttrs { return b.attrs }

func (b *fsBlob) Refresh(_ context.Context) error {
	info, err := os.Stat(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	b.attrs = fileAttrs(info)
	return nil
}

func (b *fsBlob) Open(_ context.Context, chunkSize int) (io.ReadCloser, error) {
	b.logger.Info("opening archive file", zap.String("path", b.path))
	file, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return NewBufferedReadCloser(file, chunkSize), nil
}

func (b *fsBlob) Download(_ context.Context, dst string) error {
	b.logger.Info("copying archive file", zap.String("path", b.path), zap.String("dst", dst))
	file, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	defer closer(file)()

	return WriteFileAtomic(dst, file)
}

func fileAttrs(info os.FileInfo) BlobAttrs {
	return BlobAttrs{
		Size:    info.Size(),
		Updated: info.ModTime(),
	}
}

// bufferedReadCloser reads through a bufio.Reader and closes the source.
type bufferedReadCloser struct {
	*bufio.Reader
	src io.Closer
}

// NewBufferedReadCloser wraps rc in a read buffer of chunkSize bytes.
// Non-positive sizes use the bufio default. Closing it closes rc.
func NewBufferedReadCloser(rc io.ReadCloser, chunkSize int) io.ReadCloser {
	if chunkSize <= 0 {
		return &bufferedReadCloser{Reader: bufio.NewReader(rc), src: rc}
	}
	return &bufferedReadCloser{Reader: bufio.NewReaderSize(rc, chunkSize), src: rc}
}

func (b *bufferedReadCloser) Close() error { return b.src.Close() }
