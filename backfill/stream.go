package backfill

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
)

// StatementIterator is a forward-only, single-pass sequence of statements.
//
// Usage:
//
//	defer it.Close()
//	for it.Next() {
//	    stmt := it.Statement()
//	}
//	if err := it.Err(); err != nil { ... }
//
// Close releases the underlying handle. It is safe to call more than once
// and must be called when iteration stops early.
type StatementIterator interface {
	// Next advances to the next statement. It returns false at the end of
	// the sequence or on error.
	Next() bool

	// Statement returns the current statement.
	Statement() Statement

	// Err returns the error that ended iteration, if any.
	Err() error

	// Close releases resources held by the iterator.
	Close() error
}

// ReadStatements returns an iterator decoding rows from rc with codec.
//
// Statements flagged external are skipped unless includeExternal is true.
// Compressed input (gzip, zstd, lz4) is detected and decoded transparently.
// The iterator owns rc and closes it when iteration ends or Close is
// called. A malformed row ends iteration with a *DecodeError.
func ReadStatements(rc io.ReadCloser, codec RowCodec, includeExternal bool) StatementIterator {
	return &rowIterator{
		src:             rc,
		codec:           codec,
		includeExternal: includeExternal,
	}
}

// rowIterator implements StatementIterator over a delimiter-separated stream.
type rowIterator struct {
	src             io.ReadCloser
	codec           RowCodec
	includeExternal bool

	decomp  io.ReadCloser
	rows    *csv.Reader
	line    int
	current Statement
	err     error
	done    bool
	closed  bool
}

func (it *rowIterator) Next() bool {
	if it.done {
		return false
	}
	if it.rows == nil {
		if err := it.init(); err != nil {
			return it.fail(err)
		}
	}

	for {
		row, err := it.rows.Read()
		if errors.Is(err, io.EOF) {
			return it.fail(nil)
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return it.fail(&DecodeError{Line: it.line + 1, Err: err})
			}
			return it.fail(err)
		}
		it.line++

		stmt, err := it.codec.Unpack(row)
		if err != nil {
			return it.fail(&DecodeError{Line: it.line, Err: err})
		}
		if stmt.External && !it.includeExternal {
			continue
		}
		it.current = stmt
		return true
	}
}

func (it *rowIterator) init() error {
	br := bufio.NewReader(it.src)
	decomp, err := DetectCompressor(br).Decompress(br)
	if err != nil {
		return err
	}
	it.decomp = decomp

	rows := csv.NewReader(decomp)
	rows.FieldsPerRecord = -1
	rows.ReuseRecord = true
	it.rows = rows
	return nil
}

// fail ends iteration with err (nil at a clean end) and releases the handle.
func (it *rowIterator) fail(err error) bool {
	it.done = true
	it.err = err
	it.current = Statement{}
	_ = it.Close()
	return false
}

func (it *rowIterator) Statement() Statement { return it.current }

func (it *rowIterator) Err() error { return it.err }

func (it *rowIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.done = true
	if it.decomp != nil {
		_ = it.decomp.Close()
	}
	return it.src.Close()
}

// Collect drains it into a slice and closes it.
func Collect(it StatementIterator) ([]Statement, error) {
	defer closer(it)()

	var stmts []Statement
	for it.Next() {
		stmts = append(stmts, it.Statement())
	}
	return stmts, it.Err()
}
