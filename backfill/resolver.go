package backfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// BackendKind selects the archive backend variant.
type BackendKind int

// Backend kinds.
const (
	BackendNone BackendKind = iota
	BackendCloud
	BackendFilesystem
)

func (k BackendKind) String() string {
	switch k {
	case BackendCloud:
		return "cloud"
	case BackendFilesystem:
		return "filesystem"
	default:
		return "none"
	}
}

// ParseBackendKind maps a configured backend name to a BackendKind.
// Matching is case-insensitive. An empty name selects BackendNone.
func ParseBackendKind(name string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return BackendNone, nil
	case "cloud", "s3", "googlecloudbackend":
		return BackendCloud, nil
	case "filesystem", "fs", "filesystembackend":
		return BackendFilesystem, nil
	default:
		return BackendNone, fmt.Errorf("backfill: unknown archive backend %q", name)
	}
}

// ResolverConfig holds the values used to construct the archive backend.
type ResolverConfig struct {
	// Kind selects the backend variant.
	Kind BackendKind

	// Bucket names the cloud bucket. Required for BackendCloud.
	Bucket string

	// ArchivePath is the filesystem archive root. Required for BackendFilesystem.
	ArchivePath string

	// CloudFactory constructs the cloud backend. Required for BackendCloud.
	CloudFactory CloudFactory
}

// Resolver constructs the archive backend at most once and hands the same
// result to every caller.
//
// Configuration errors are logged and reported as "no backend"; they never
// reach callers. Construction is not retried for the lifetime of the
// Resolver, even if it would now succeed.
//
// Resolver is safe for concurrent use.
type Resolver struct {
	cfg    ResolverConfig
	logger *zap.Logger

	once    sync.Once
	backend Backend
}

// NewResolver creates a Resolver. Nothing is constructed until the first
// call to Backend.
func NewResolver(cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// Backend returns the archive backend, or false when none is configured or
// construction failed.
func (r *Resolver) Backend(ctx context.Context) (Backend, bool) {
	r.once.Do(func() {
		r.backend = r.construct(ctx)
	})
	return r.backend, r.backend != nil
}

func (r *Resolver) construct(ctx context.Context) Backend {
	backend, err := r.build(ctx)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			r.logger.Warn(cfgErr.Message, zap.Stringer("backend", r.cfg.Kind))
		} else {
			r.logger.Warn("archive backend construction failed",
				zap.Stringer("backend", r.cfg.Kind), zap.Error(err))
		}
		return nil
	}
	return backend
}

func (r *Resolver) build(ctx context.Context) (Backend, error) {
	switch r.cfg.Kind {
	case BackendNone:
		r.logger.Info("no backfill backend configured")
		return nil, nil
	case BackendCloud:
		if r.cfg.Bucket == "" {
			return nil, &ConfigurationError{Message: "no backfill bucket configured"}
		}
		if r.cfg.CloudFactory == nil {
			return nil, &ConfigurationError{Message: "no cloud client configured"}
		}
		return r.cfg.CloudFactory(ctx, r.cfg.Bucket)
	case BackendFilesystem:
		if r.cfg.ArchivePath == "" {
			return nil, &ConfigurationError{Message: "no archive path configured"}
		}
		return NewFilesystemBackend(r.cfg.ArchivePath, r.logger), nil
	default:
		return nil, &ConfigurationError{Message: fmt.Sprintf("unsupported archive backend %d", r.cfg.Kind)}
	}
}
