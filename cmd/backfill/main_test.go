package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/backfill/backfill"
	"github.com/pithecene-io/backfill/internal/config"
	"github.com/pithecene-io/backfill/internal/testutil"
)

// setupEnv points the CLI at a fresh data root and filesystem archive.
func setupEnv(t *testing.T) (dataPath, archivePath string) {
	t.Helper()
	dataPath = t.TempDir()
	archivePath = t.TempDir()
	t.Setenv(config.EnvDataPath, dataPath)
	t.Setenv(config.EnvArchiveBackend, "filesystem")
	t.Setenv(config.EnvArchivePath, archivePath)
	t.Setenv(config.EnvRelease, "latest")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvLogFormat, "console")
	return dataPath, archivePath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResourceCommand_Backfills(t *testing.T) {
	_, archivePath := setupEnv(t)
	testutil.WriteFile(t, filepath.Join(archivePath, "datasets", "latest", "acme", "index.json"), []byte("{}"))

	out, err := run(t, "resource", "acme", "index.json")
	require.NoError(t, err)

	path := strings.TrimSpace(out)
	assert.Equal(t, "index.json", filepath.Base(path))
	assert.FileExists(t, path)
}

func TestResourceCommand_NotAvailable(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "resource", "acme", "index.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestStatementsCommand_Composite(t *testing.T) {
	dataPath, archivePath := setupEnv(t)
	testutil.WriteFile(t, filepath.Join(dataPath, "datasets", "l1", backfill.StatementsFile), testutil.PackStatements(t,
		testutil.Statement("l1", "a1", false),
	))
	testutil.WriteFile(t, filepath.Join(archivePath, "datasets", "latest", "l2", backfill.StatementsFile), testutil.PackStatements(t,
		testutil.Statement("l2", "b1", false),
		testutil.Statement("l2", "b2", true),
	))

	out, err := run(t, "statements", "all", "--leaf", "l1", "--leaf", "l2", "--no-external")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
}

func TestStatementsCommand_OutputFile(t *testing.T) {
	dataPath, _ := setupEnv(t)
	testutil.WriteFile(t, filepath.Join(dataPath, "datasets", "acme", backfill.StatementsFile), testutil.PackStatements(t,
		testutil.Statement("acme", "e1", false),
	))
	output := filepath.Join(t.TempDir(), "statements.jsonl.gz")

	_, err := run(t, "statements", "acme", "--format", "jsonl", "--compress", "gzip", "-o", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])
}

func TestStatementsCommand_UnknownFormat(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "statements", "acme", "--format", "xml")
	require.Error(t, err)
}

func TestPathsCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "paths", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "archive\tdatasets/latest/acme/statements.pack")
	assert.Contains(t, out, filepath.Join("state", "acme"))
}
