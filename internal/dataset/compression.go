package dataset

import (
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies a whole-file compression wrapper, detected from the
// file extension.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGZ
	CompressionBZ2
	CompressionXZ
	CompressionZSTD
)

var compressionExt = map[Compression]string{
	CompressionGZ:   ".gz",
	CompressionBZ2:  ".bz2",
	CompressionXZ:   ".xz",
	CompressionZSTD: ".zst",
}

// Extension returns the file suffix for c, or "" for none.
func (c Compression) Extension() string { return compressionExt[c] }

// DetectCompression inspects the path suffix.
func DetectCompression(path string) Compression {
	lower := strings.ToLower(path)
	for c, ext := range compressionExt {
		if strings.HasSuffix(lower, ext) {
			return c
		}
	}
	return CompressionNone
}

// TrimCompression strips a compression suffix so the inner format can be
// detected ("adlbc.csv.zst" -> "adlbc.csv").
func TrimCompression(path string) string {
	c := DetectCompression(path)
	if c == CompressionNone {
		return path
	}
	return path[:len(path)-len(c.Extension())]
}

// NewReader wraps r with a decompressor. The returned func releases it.
func (c Compression) NewReader(r io.Reader) (io.Reader, func() error, error) {
	switch c {
	case CompressionNone:
		return r, func() error { return nil }, nil
	case CompressionGZ:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gz, gz.Close, nil
	case CompressionBZ2:
		return bzip2.NewReader(r), func() error { return nil }, nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xr, func() error { return nil }, nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return dec, func() error {
			dec.Close()
			return nil
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %d", int(c))
	}
}

// NewWriter wraps w with a compressor. The returned func flushes and closes
// the compressor, not w.
func (c Compression) NewWriter(w io.Writer) (io.Writer, func() error, error) {
	switch c {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionGZ:
		gz := gzip.NewWriter(w)
		return gz, gz.Close, nil
	case CompressionBZ2:
		return nil, nil, errors.New("bzip2 compression is not supported for writing")
	case CompressionXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("xz writer: %w", err)
		}
		return xw, xw.Close, nil
	case CompressionZSTD:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, enc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %d", int(c))
	}
}
