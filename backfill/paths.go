package backfill

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	datasetsDir = "datasets"
	stateDir    = "state"
)

// Paths maps datasets and resources to their local storage locations.
//
// Layout:
//
//	<root>/datasets/<dataset>/<resource>   durable resources
//	<root>/state/<dataset>/                transient processing artifacts
//
// The state tree is never archived or backfilled.
type Paths struct {
	root string
}

// NewPaths creates a Paths rooted at the local data directory.
func NewPaths(dataRoot string) *Paths {
	return &Paths{root: dataRoot}
}

// Root returns the local data directory.
func (p *Paths) Root() string { return p.root }

// DatasetsPath returns the root of durable dataset storage.
func (p *Paths) DatasetsPath() string {
	return filepath.Join(p.root, datasetsDir)
}

// StateRoot returns the root of transient per-dataset state.
func (p *Paths) StateRoot() string {
	return filepath.Join(p.root, stateDir)
}

// DatasetPath returns the canonical durable directory for a dataset,
// creating it if needed.
func (p *Paths) DatasetPath(name string) (string, error) {
	if err := validateSegment(name); err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(p.DatasetsPath(), name))
}

// DatasetStatePath returns the canonical state directory for a dataset,
// creating it if needed.
func (p *Paths) DatasetStatePath(name string) (string, error) {
	if err := validateSegment(name); err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(p.StateRoot(), name))
}

// DatasetResourcePath returns the canonical local path of a dataset
// resource. The dataset directory is created; the resource is not.
func (p *Paths) DatasetResourcePath(name, resource string) (string, error) {
	rel, err := cleanResource(resource)
	if err != nil {
		return "", err
	}
	dir, err := p.DatasetPath(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), nil
}

// ensureDir creates dir and returns it with symlinks resolved.
func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// validateSegment rejects dataset names that are not a single path segment.
func validateSegment(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidPath
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrInvalidPath
	}
	return nil
}

// cleanResource normalizes a resource name to a relative slash path that
// stays inside the dataset directory.
func cleanResource(resource string) (string, error) {
	if resource == "" {
		return "", ErrInvalidPath
	}
	slashed := filepath.ToSlash(resource)
	if strings.HasPrefix(slashed, "/") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
