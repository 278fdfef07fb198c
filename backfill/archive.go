package backfill

import (
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"
)

// Config holds the values an Archive is built from.
type Config struct {
	// DataPath is the local data root holding datasets/ and state/.
	DataPath string

	// Release identifies the archived snapshot used for every lookup.
	Release string

	// Resolver configures the archive backend. Ignored when WithResolver
	// or WithBackend is given.
	Resolver ResolverConfig
}

// archiveConfig holds the resolved options for an Archive.
type archiveConfig struct {
	logger    *zap.Logger
	codec     RowCodec
	chunkSize int
	resolver  *Resolver
}

// Option configures Archive construction.
type Option func(*archiveConfig)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *archiveConfig) { c.logger = l }
}

// WithCodec sets the statement row codec. Default: NewPackCodec().
func WithCodec(codec RowCodec) Option {
	return func(c *archiveConfig) { c.codec = codec }
}

// WithChunkSize sets the read buffer for streamed blobs.
// Default: DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(c *archiveConfig) { c.chunkSize = n }
}

// WithResolver shares an existing Resolver, so several consumers see the
// same backend.
func WithResolver(r *Resolver) Option {
	return func(c *archiveConfig) { c.resolver = r }
}

// WithBackend uses b as the archive backend.
func WithBackend(b Backend) Option {
	return func(c *archiveConfig) { c.resolver = ResolverFor(b) }
}

// ResolverFor returns a Resolver that always yields b. A nil b yields no
// backend.
func ResolverFor(b Backend) *Resolver {
	r := &Resolver{logger: zap.NewNop()}
	r.once.Do(func() { r.backend = b })
	return r
}

// Archive resolves dataset resources locally or from the release archive
// and streams dataset statements.
type Archive struct {
	paths     *Paths
	release   string
	resolver  *Resolver
	codec     RowCodec
	chunkSize int
	logger    *zap.Logger
}

// New creates an Archive with documented defaults.
//
// Default behavior:
//   - Logger: zap.NewNop()
//   - Codec: NewPackCodec()
//   - Chunk size: DefaultChunkSize
//   - Resolver: NewResolver(cfg.Resolver, logger)
func New(cfg Config, opts ...Option) (*Archive, error) {
	if cfg.DataPath == "" {
		return nil, errors.New("backfill: data path is required")
	}
	if cfg.Release == "" {
		return nil, errors.New("backfill: release is required")
	}

	c := &archiveConfig{
		logger:    zap.NewNop(),
		codec:     NewPackCodec(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		return nil, errors.New("backfill: logger must not be nil")
	}
	if c.codec == nil {
		return nil, errors.New("backfill: codec must not be nil")
	}
	if c.resolver == nil {
		c.resolver = NewResolver(cfg.Resolver, c.logger)
	}

	return &Archive{
		paths:     NewPaths(cfg.DataPath),
		release:   cfg.Release,
		resolver:  c.resolver,
		codec:     c.codec,
		chunkSize: c.chunkSize,
		logger:    c.logger,
	}, nil
}

// Paths returns the local path resolver.
func (a *Archive) Paths() *Paths { return a.paths }

// Release returns the configured archive release.
func (a *Archive) Release() string { return a.release }

// Codec returns the statement row codec.
func (a *Archive) Codec() RowCodec { return a.codec }

// -----------------------------------------------------------------------------
// Backfill
// -----------------------------------------------------------------------------

// BlobKey returns the archive object name of a dataset resource:
// datasets/<release>/<dataset>/<resource>.
func (a *Archive) BlobKey(datasetName, resource string) string {
	return path.Join(datasetsDir, a.release, datasetName, resource)
}

// BackfillBlob resolves the archived blob of a dataset resource.
// Returns ErrNotFound when no backend is available or the blob is missing.
func (a *Archive) BackfillBlob(ctx context.Context, datasetName, resource string) (Blob, error) {
	if err := validateSegment(datasetName); err != nil {
		return nil, err
	}
	rel, err := cleanResource(resource)
	if err != nil {
		return nil, err
	}

	backend, ok := a.resolver.Backend(ctx)
	if !ok {
		return nil, ErrNotFound
	}
	return backend.Resolve(ctx, a.BlobKey(datasetName, rel))
}

// BackfillResource copies the archived blob of a dataset resource to dst
// and returns dst. Returns ErrNotFound when there is nothing to copy.
func (a *Archive) BackfillResource(ctx context.Context, datasetName, resource, dst string) (string, error) {
	blob, err := a.BackfillBlob(ctx, datasetName, resource)
	if err != nil {
		return "", err
	}

	a.logger.Info("backfilling dataset resource",
		zap.String("dataset", datasetName),
		zap.String("resource", resource),
		zap.String("blob_name", blob.Name()),
	)
	if err := blob.Download(ctx, dst); err != nil {
		return "", fmt.Errorf("backfill: download %s: %w", blob.Name(), err)
	}
	return dst, nil
}

// resourceOptions holds GetDatasetResource flags.
type resourceOptions struct {
	backfill bool
	force    bool
}

// ResourceOption configures GetDatasetResource.
type ResourceOption func(*resourceOptions)

// WithoutBackfill disables the archive fallback for a missing local file.
func WithoutBackfill() ResourceOption {
	return func(o *resourceOptions) { o.backfill = false }
}

// WithForceBackfill copies the archived resource even when a local file
// exists.
func WithForceBackfill() ResourceOption {
	return func(o *resourceOptions) { o.force = true }
}

// GetDatasetResource returns the local path of a dataset resource.
//
// An existing local file is returned as is, without consulting the archive,
// unless WithForceBackfill is given. Otherwise the resource is backfilled
// from the archive into the local path. Returns ErrNotFound when the
// resource is available nowhere; the local path is not created then.
func (a *Archive) GetDatasetResource(ctx context.Context, ds Dataset, resource string, opts ...ResourceOption) (string, error) {
	o := resourceOptions{backfill: true}
	for _, opt := range opts {
		opt(&o)
	}

	local, err := a.paths.DatasetResourcePath(ds.Name(), resource)
	if err != nil {
		return "", err
	}
	exists, err := fileExists(local)
	if err != nil {
		return "", err
	}
	if exists && !o.force {
		return local, nil
	}
	if o.backfill || o.force {
		return a.BackfillResource(ctx, ds.Name(), resource, local)
	}
	return "", ErrNotFound
}

// GetDatasetIndex returns the local path of a dataset's index file,
// backfilling it if allowed. Backfill failures of any kind are logged and
// reported as ErrNotFound.
func (a *Archive) GetDatasetIndex(ctx context.Context, datasetName string, backfill bool) (string, error) {
	local, err := a.paths.DatasetResourcePath(datasetName, IndexFile)
	if err != nil {
		return "", err
	}
	exists, err := fileExists(local)
	if err != nil {
		return "", err
	}
	if !exists && backfill {
		if _, err := a.BackfillResource(ctx, datasetName, IndexFile, local); err != nil && !errors.Is(err, ErrNotFound) {
			a.logger.Warn("index backfill failed",
				zap.String("dataset", datasetName), zap.Error(err))
		}
		exists, err = fileExists(local)
		if err != nil {
			return "", err
		}
	}
	if !exists {
		return "", ErrNotFound
	}
	return local, nil
}
