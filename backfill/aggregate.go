package backfill

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
)

// leafOpener opens the statement stream of one leaf dataset. A nil
// iterator with a nil error means the leaf contributes no statements.
type leafOpener func(ctx context.Context, leaf Dataset) (StatementIterator, error)

// IterDatasetStatements returns the statements of every leaf of ds as one
// lazy sequence.
//
// Each leaf reads its local statements file when present. Otherwise the
// archived file is streamed directly from the backend without being written
// to disk. A leaf found in neither place is logged at error level and
// contributes nothing. Order across leaves is not meaningful.
func (a *Archive) IterDatasetStatements(ctx context.Context, ds Dataset, includeExternal bool) StatementIterator {
	return a.concat(ctx, ds, func(ctx context.Context, leaf Dataset) (StatementIterator, error) {
		local, err := a.paths.DatasetResourcePath(leaf.Name(), StatementsFile)
		if err != nil {
			return nil, err
		}
		exists, err := fileExists(local)
		if err != nil {
			return nil, err
		}
		if exists {
			file, err := os.Open(local)
			if err != nil {
				return nil, err
			}
			return ReadStatements(file, a.codec, includeExternal), nil
		}

		it, err := a.streamArchivedStatements(ctx, leaf.Name(), includeExternal)
		if errors.Is(err, ErrNotFound) {
			a.logger.Error("cannot load statements", zap.String("dataset", leaf.Name()))
			return nil, nil
		}
		return it, err
	})
}

// IterPreviousStatements returns the archived statements of every leaf of
// ds as one lazy sequence, ignoring local files. Leaves missing from the
// archive contribute nothing.
func (a *Archive) IterPreviousStatements(ctx context.Context, ds Dataset, includeExternal bool) StatementIterator {
	return a.concat(ctx, ds, func(ctx context.Context, leaf Dataset) (StatementIterator, error) {
		it, err := a.streamArchivedStatements(ctx, leaf.Name(), includeExternal)
		if errors.Is(err, ErrNotFound) {
			a.logger.Warn("no previous statements", zap.String("dataset", leaf.Name()))
			return nil, nil
		}
		return it, err
	})
}

// streamArchivedStatements opens the archived statements blob of a dataset
// for streaming. The blob metadata is refreshed before it is opened.
func (a *Archive) streamArchivedStatements(ctx context.Context, datasetName string, includeExternal bool) (StatementIterator, error) {
	blob, err := a.BackfillBlob(ctx, datasetName, StatementsFile)
	if err != nil {
		return nil, err
	}

	a.logger.Info("streaming backfilled statements",
		zap.String("dataset", datasetName),
		zap.String("blob_name", blob.Name()),
	)
	if err := blob.Refresh(ctx); err != nil {
		return nil, err
	}
	rc, err := blob.Open(ctx, a.chunkSize)
	if err != nil {
		return nil, err
	}
	return ReadStatements(rc, a.codec, includeExternal), nil
}

func (a *Archive) concat(ctx context.Context, ds Dataset, open leafOpener) StatementIterator {
	return &concatIterator{
		ctx:    ctx,
		leaves: ds.Leaves(),
		open:   open,
	}
}

// concatIterator chains per-leaf iterators. Leaves are opened one at a time;
// each is closed before the next is opened.
type concatIterator struct {
	ctx    context.Context
	leaves []Dataset
	open   leafOpener

	next    int
	cur     StatementIterator
	current Statement
	err     error
	done    bool
}

func (c *concatIterator) Next() bool {
	for !c.done {
		if c.cur == nil {
			if c.next >= len(c.leaves) {
				c.done = true
				break
			}
			if err := c.ctx.Err(); err != nil {
				return c.fail(err)
			}
			leaf := c.leaves[c.next]
			c.next++

			it, err := c.open(c.ctx, leaf)
			if err != nil {
				return c.fail(err)
			}
			if it == nil {
				continue
			}
			c.cur = it
		}

		if c.cur.Next() {
			c.current = c.cur.Statement()
			return true
		}
		err := c.cur.Err()
		_ = c.cur.Close()
		c.cur = nil
		if err != nil {
			return c.fail(err)
		}
	}
	c.current = Statement{}
	return false
}

func (c *concatIterator) fail(err error) bool {
	c.err = err
	c.current = Statement{}
	_ = c.Close()
	return false
}

func (c *concatIterator) Statement() Statement { return c.current }

func (c *concatIterator) Err() error { return c.err }

func (c *concatIterator) Close() error {
	c.done = true
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}
