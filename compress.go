package xdrfile

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

//Trajectories are often stored compressed, so the format handles accept
//filenames with a trailing compression extension and wrap the file in the
//corresponding (de)compressor. The xtc/trr payload never needs a backward
//seek, so the wrapped stream works the same as a plain file.

// IsCompressed reports whether the filename carries an extension of one of
// the supported compressed containers.
func IsCompressed(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".zst") || strings.HasSuffix(name, ".zstd")
}

//zstd.Decoder.Close returns nothing, so it does not satisfy io.ReadCloser
//on its own.
type zstdql struct {
	closeql func()
	*zstd.Decoder
}

func (z zstdql) Close() error {
	z.closeql()
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewDecompressor wraps r according to the compression extension of name.
// A name without one returns r untouched behind a no-op Close.
func NewDecompressor(name string, r io.Reader) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".gz"):
		return gzip.NewReader(r)
	case IsCompressed(name): //.zst or .zstd
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdql{d.Close, d}, nil
	default:
		return io.NopCloser(r), nil
	}
}

// NewCompressor wraps w according to the compression extension of name.
// A name without one returns w untouched behind a no-op Close.
func NewCompressor(name string, w io.Writer) (io.WriteCloser, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".gz"):
		return gzip.NewWriter(w), nil
	case IsCompressed(name):
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	default:
		return nopWriteCloser{w}, nil
	}
}
