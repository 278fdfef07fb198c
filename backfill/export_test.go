package backfill_test

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/backfill/backfill"
	"github.com/pithecene-io/backfill/internal/testutil"
)

func statementsIterator(t *testing.T, stmts ...backfill.Statement) backfill.StatementIterator {
	t.Helper()
	data := testutil.PackStatements(t, stmts...)
	return backfill.ReadStatements(io.NopCloser(bytes.NewReader(data)), backfill.NewPackCodec(), true)
}

func TestWriteStatementsCSV(t *testing.T) {
	stmts := mixedStatements()
	var buf bytes.Buffer

	n, err := backfill.WriteStatementsCSV(&buf, statementsIterator(t, stmts...), backfill.NewPackCodec())
	require.NoError(t, err)
	assert.Equal(t, len(stmts), n)
	assert.Equal(t, testutil.PackStatements(t, stmts...), buf.Bytes())
}

func TestWriteStatementsJSONL(t *testing.T) {
	var buf bytes.Buffer

	n, err := backfill.WriteStatementsJSONL(&buf, statementsIterator(t,
		testutil.Statement("acme", "e1", false),
		testutil.Statement("acme", "e2", true),
	))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var lines []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"entity_id":"e1"`)
	assert.Contains(t, lines[1], `"external":true`)
}

func TestWriteStatementsParquet(t *testing.T) {
	stmts := mixedStatements()
	var buf bytes.Buffer

	n, err := backfill.WriteStatementsParquet(&buf, statementsIterator(t, stmts...),
		backfill.WithParquetCompression(backfill.ParquetCompressionSnappy))
	require.NoError(t, err)
	assert.Equal(t, len(stmts), n)

	rows, err := parquet.Read[backfill.Statement](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, stmts, rows)
}

func TestWriteStatementsParquet_StopsOnDecodeError(t *testing.T) {
	data := append(testutil.PackStatements(t, testutil.Statement("acme", "e1", false)), []byte("bad\n")...)
	it := backfill.ReadStatements(io.NopCloser(bytes.NewReader(data)), backfill.NewPackCodec(), true)

	_, err := backfill.WriteStatementsParquet(io.Discard, it)
	var decodeErr *backfill.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
