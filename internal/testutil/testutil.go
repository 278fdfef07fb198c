// Package testutil provides fixtures for backfill tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pithecene-io/backfill/backfill"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// PackStatements encodes stmts as packed CSV rows.
func PackStatements(t testing.TB, stmts ...backfill.Statement) []byte {
	t.Helper()
	codec := backfill.NewPackCodec()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, stmt := range stmts {
		if err := w.Write(codec.Pack(stmt)); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Compress encodes data with c.
func Compress(t testing.TB, c backfill.Compressor, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := c.Compress(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Statement returns a statement for entity id with the given external flag.
func Statement(dataset, id string, external bool) backfill.Statement {
	return backfill.Statement{
		EntityID:    id,
		CanonicalID: id,
		Schema:      "Person",
		Prop:        "name",
		Dataset:     dataset,
		Value:       "Name of " + id,
		External:    external,
		FirstSeen:   "2024-01-01T00:00:00",
		LastSeen:    "2024-06-01T00:00:00",
	}
}

// CountingBackend wraps a Backend and records every Resolve call.
type CountingBackend struct {
	Inner backfill.Backend

	mu    sync.Mutex
	names []string
}

// Resolve records name and delegates to Inner. A nil Inner reports
// backfill.ErrNotFound.
func (c *CountingBackend) Resolve(ctx context.Context, name string) (backfill.Blob, error) {
	c.mu.Lock()
	c.names = append(c.names, name)
	c.mu.Unlock()
	if c.Inner == nil {
		return nil, backfill.ErrNotFound
	}
	return c.Inner.Resolve(ctx, name)
}

// Calls returns the names passed to Resolve, in order.
func (c *CountingBackend) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}
