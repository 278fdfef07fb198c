package backfill

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// exportBatchSize bounds the statements buffered per parquet write.
const exportBatchSize = 1024

// WriteStatementsCSV drains it into w as packed rows and closes it.
// It returns the number of statements written.
func WriteStatementsCSV(w io.Writer, it StatementIterator, codec RowCodec) (int, error) {
	defer closer(it)()

	out := csv.NewWriter(w)
	n := 0
	for it.Next() {
		if err := out.Write(codec.Pack(it.Statement())); err != nil {
			return n, err
		}
		n++
	}
	if err := it.Err(); err != nil {
		return n, err
	}
	out.Flush()
	return n, out.Error()
}

// WriteStatementsJSONL drains it into w as JSON Lines and closes it.
// It returns the number of statements written.
func WriteStatementsJSONL(w io.Writer, it StatementIterator) (int, error) {
	defer closer(it)()

	enc := json.NewEncoder(w)
	n := 0
	for it.Next() {
		if err := enc.Encode(it.Statement()); err != nil {
			return n, err
		}
		n++
	}
	return n, it.Err()
}

// ParquetCompression specifies internal Parquet compression.
type ParquetCompression int

// Parquet compression options for internal file compression.
const (
	ParquetCompressionZstd ParquetCompression = iota
	ParquetCompressionSnappy
	ParquetCompressionGzip
	ParquetCompressionNone
)

// ParquetOption configures parquet export.
type ParquetOption func(*parquetExport)

// WithParquetCompression sets internal Parquet compression.
// Default: ParquetCompressionZstd.
func WithParquetCompression(c ParquetCompression) ParquetOption {
	return func(p *parquetExport) {
		p.compression = c
	}
}

type parquetExport struct {
	compression ParquetCompression
}

func (p *parquetExport) compressionOption() parquet.WriterOption {
	switch p.compression {
	case ParquetCompressionSnappy:
		return parquet.Compression(&parquet.Snappy)
	case ParquetCompressionGzip:
		return parquet.Compression(&parquet.Gzip)
	case ParquetCompressionNone:
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Zstd)
	}
}

// WriteStatementsParquet drains it into w as a parquet file and closes it.
// It returns the number of statements written.
//
// Statements are written in batches, so memory use does not grow with the
// stream. The file footer is written only when the stream ends cleanly.
func WriteStatementsParquet(w io.Writer, it StatementIterator, opts ...ParquetOption) (int, error) {
	defer closer(it)()

	p := &parquetExport{compression: ParquetCompressionZstd}
	for _, opt := range opts {
		opt(p)
	}

	pw := parquet.NewGenericWriter[Statement](w, p.compressionOption())
	batch := make([]Statement, 0, exportBatchSize)
	n := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.Write(batch); err != nil {
			return fmt.Errorf("parquet: write rows: %w", err)
		}
		n += len(batch)
		batch = batch[:0]
		return nil
	}

	for it.Next() {
		batch = append(batch, it.Statement())
		if len(batch) == exportBatchSize {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return n, err
	}
	if err := flush(); err != nil {
		return n, err
	}
	if err := pw.Close(); err != nil {
		return n, fmt.Errorf("parquet: close writer: %w", err)
	}
	return n, nil
}
