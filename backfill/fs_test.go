package backfill_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pithecene-io/backfill/backfill"
	"github.com/pithecene-io/backfill/internal/testutil"
)

// -----------------------------------------------------------------------------
// Filesystem Backend
// -----------------------------------------------------------------------------

func TestFilesystemBackend_Resolve_Found(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "datasets", "latest", "acme", "index.json"), []byte(`{"name":"acme"}`))

	backend := backfill.NewFilesystemBackend(root, nil)
	blob, err := backend.Resolve(t.Context(), "datasets/latest/acme/index.json")
	require.NoError(t, err)

	assert.Equal(t, "datasets/latest/acme/index.json", blob.Name())
	assert.Equal(t, int64(len(`{"name":"acme"}`)), blob.Attrs().Size)
	assert.False(t, blob.Attrs().Updated.IsZero())
}

func TestFilesystemBackend_Resolve_Missing(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	backend := backfill.NewFilesystemBackend(t.TempDir(), zap.New(core))

	_, err := backend.Resolve(t.Context(), "datasets/latest/acme/index.json")
	require.ErrorIs(t, err, backfill.ErrNotFound)
	assert.Equal(t, 1, logs.FilterMessage("archive file does not exist").Len())
}

func TestFilesystemBackend_Resolve_MissingRoot(t *testing.T) {
	backend := backfill.NewFilesystemBackend(filepath.Join(t.TempDir(), "nope"), nil)

	_, err := backend.Resolve(t.Context(), "datasets/latest/acme/index.json")
	require.ErrorIs(t, err, backfill.ErrNotFound)
}

func TestFilesystemBackend_Resolve_Directory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "datasets", "latest", "acme"), 0o755))

	backend := backfill.NewFilesystemBackend(root, nil)
	_, err := backend.Resolve(t.Context(), "datasets/latest/acme")
	require.ErrorIs(t, err, backfill.ErrNotFound)
}

func TestFilesystemBackend_Resolve_InvalidPath(t *testing.T) {
	backend := backfill.NewFilesystemBackend(t.TempDir(), nil)

	for _, name := range []string{"", ".", "..", "../escape", "a/../../escape", "/etc/passwd"} {
		_, err := backend.Resolve(t.Context(), name)
		assert.ErrorIs(t, err, backfill.ErrInvalidPath, "name %q", name)
	}
}

func TestFilesystemBlob_OpenAndDownload(t *testing.T) {
	root := t.TempDir()
	content := []byte("entity-1,Person,name\n")
	testutil.WriteFile(t, filepath.Join(root, "datasets", "r1", "acme", "statements.pack"), content)

	backend := backfill.NewFilesystemBackend(root, nil)
	blob, err := backend.Resolve(t.Context(), "datasets/r1/acme/statements.pack")
	require.NoError(t, err)
	require.NoError(t, blob.Refresh(t.Context()))

	rc, err := blob.Open(t.Context(), 16)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, got)

	dst := filepath.Join(t.TempDir(), "nested", "statements.pack")
	require.NoError(t, blob.Download(t.Context(), dst))
	copied, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, copied)
}

func TestFilesystemBlob_Refresh_Removed(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "datasets", "r1", "acme", "index.json")
	testutil.WriteFile(t, file, []byte("{}"))

	backend := backfill.NewFilesystemBackend(root, nil)
	blob, err := backend.Resolve(t.Context(), "datasets/r1/acme/index.json")
	require.NoError(t, err)

	require.NoError(t, os.Remove(file))
	err = blob.Refresh(t.Context())
	assert.True(t, errors.Is(err, backfill.ErrNotFound))
}

// -----------------------------------------------------------------------------
// WriteFileAtomic
// -----------------------------------------------------------------------------

func TestWriteFileAtomic_ReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "resources.json")
	testutil.WriteFile(t, dst, []byte("old"))

	require.NoError(t, backfill.WriteFileAtomic(dst, readerOf("new")))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomic_FailedCopyKeepsDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "resources.json")

	err := backfill.WriteFileAtomic(dst, io.MultiReader(readerOf("partial"), errReader{}))
	require.Error(t, err)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
