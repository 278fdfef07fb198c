package backfill

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor handles compression and decompression of resource streams.
type Compressor interface {
	// Name returns the compressor identifier ("gzip", "zstd", "lz4", "noop").
	Name() string

	// Extension returns the conventional file suffix, empty for noop.
	Extension() string

	// Compress wraps a writer with compression.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// frameCodec is a Compressor described by its frame format.
type frameCodec struct {
	name   string
	ext    string
	magic  []byte
	writer func(io.Writer) (io.WriteCloser, error)
	reader func(io.Reader) (io.ReadCloser, error)
}

func (f *frameCodec) Name() string      { return f.name }
func (f *frameCodec) Extension() string { return f.ext }

func (f *frameCodec) Compress(w io.Writer) (io.WriteCloser, error) { return f.writer(w) }

func (f *frameCodec) Decompress(r io.Reader) (io.ReadCloser, error) { return f.reader(r) }

var (
	gzipCodec = &frameCodec{
		name:  "gzip",
		ext:   ".gz",
		magic: []byte{0x1f, 0x8b},
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	}

	zstdCodec = &frameCodec{
		name:  "zstd",
		ext:   ".zst",
		magic: []byte{0x28, 0xb5, 0x2f, 0xfd},
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
	}

	lz4Codec = &frameCodec{
		name:  "lz4",
		ext:   ".lz4",
		magic: []byte{0x04, 0x22, 0x4d, 0x18},
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return lz4.NewWriter(w), nil
		},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		},
	}

	plainCodec = &frameCodec{
		name: "noop",
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return nopWriteCloser{w}, nil
		},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
	}

	// framed lists the codecs recognized by magic bytes, longest magic first.
	framed = []*frameCodec{zstdCodec, lz4Codec, gzipCodec}
)

// NewGzipCompressor returns the gzip compressor.
func NewGzipCompressor() Compressor { return gzipCodec }

// NewZstdCompressor returns the zstd compressor. Published statement
// archives are usually zstd.
func NewZstdCompressor() Compressor { return zstdCodec }

// NewLZ4Compressor returns the LZ4 frame compressor.
func NewLZ4Compressor() Compressor { return lz4Codec }

// NewNoOpCompressor returns a compressor that passes data through.
func NewNoOpCompressor() Compressor { return plainCodec }

// NewCompressor returns the compressor registered under name, or false.
// "none" and the empty name select the noop compressor.
func NewCompressor(name string) (Compressor, bool) {
	switch name {
	case "", "none", plainCodec.name:
		return plainCodec, true
	}
	for _, c := range framed {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// DetectCompressor peeks at the head of br and returns the compressor whose
// frame magic matches, or the noop compressor for plain text.
func DetectCompressor(br *bufio.Reader) Compressor {
	head, _ := br.Peek(len(zstdCodec.magic))
	for _, c := range framed {
		if bytes.HasPrefix(head, c.magic) {
			return c
		}
	}
	return plainCodec
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
