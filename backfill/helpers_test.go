package backfill_test

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pithecene-io/backfill/backfill"
	"github.com/pithecene-io/backfill/internal/testutil"
)

func readerOf(s string) io.Reader { return strings.NewReader(s) }

// errReader fails every read.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

// trackingCloser records whether Close was called.
type trackingCloser struct {
	io.Reader
	closed int
}

func (c *trackingCloser) Close() error {
	c.closed++
	return nil
}

// newArchive creates an Archive over a fresh data root with backend b.
func newArchive(t *testing.T, b backfill.Backend, logger *zap.Logger, release string) *backfill.Archive {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	a, err := backfill.New(backfill.Config{
		DataPath: t.TempDir(),
		Release:  release,
	}, backfill.WithBackend(b), backfill.WithLogger(logger))
	require.NoError(t, err)
	return a
}

// writeLocal writes a dataset resource into the archive's local data root.
func writeLocal(t *testing.T, a *backfill.Archive, dataset, resource string, data []byte) string {
	t.Helper()
	path := filepath.Join(a.Paths().DatasetsPath(), dataset, filepath.FromSlash(resource))
	testutil.WriteFile(t, path, data)
	return path
}

// writeArchived writes a blob into a filesystem archive root under the
// release key layout.
func writeArchived(t *testing.T, root, release, dataset, resource string, data []byte) {
	t.Helper()
	testutil.WriteFile(t, filepath.Join(root, "datasets", release, dataset, filepath.FromSlash(resource)), data)
}

func entityIDs(stmts []backfill.Statement) []string {
	ids := make([]string, 0, len(stmts))
	for _, s := range stmts {
		ids = append(ids, s.EntityID)
	}
	return ids
}
