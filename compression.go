package zarr

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/qri-io/dataset/compression"
)

// ErrUnsupportedCodec is returned when reading or writing chunks with a
// compressor zarr-go can't run
var ErrUnsupportedCodec = errors.New("unsupported codec")

const (
	// CodecZstd is the numcodecs id for zstandard compression
	CodecZstd = "zstd"
	// CodecGzip is the numcodecs id for gzip compression
	CodecGzip = "gzip"
)

// numcodecs ids mapped to dataset compression formats
var codecFormats = map[string]compression.Format{
	CodecZstd: compression.FmtZStandard,
	CodecGzip: compression.FmtGZip,
}

// CompressionMeta defines compression settings zarr-go understands. A nil
// *CompressionMeta is a "null" compressor: chunks are stored as raw bytes
type CompressionMeta struct {
	ID       string `json:"id"`
	Cname    string `json:"cname,omitempty"`
	Clevel   int    `json:"clevel,omitempty"`
	Shuffle  int    `json:"shuffle,omitempty"`
	Level    int    `json:"level,omitempty"`
	Checksum bool   `json:"checksum,omitempty"`
}

// NewCompressionMeta returns compressor settings for a codec id, nil for the
// empty id
func NewCompressionMeta(id string) (*CompressionMeta, error) {
	if id == "" {
		return nil, nil
	}
	if _, ok := codecFormats[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, id)
	}
	return &CompressionMeta{ID: id}, nil
}

func (m *CompressionMeta) format() (compression.Format, error) {
	f, ok := codecFormats[m.ID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCodec, m.ID)
	}
	return f, nil
}

// Compressor wraps w with the configured codec. Callers must Close the
// returned writer to flush it
func (m *CompressionMeta) Compressor(w io.Writer) (io.WriteCloser, error) {
	if m == nil {
		return nopWriteCloser{w}, nil
	}
	f, err := m.format()
	if err != nil {
		return nil, err
	}
	return compression.Compressor(string(f), w)
}

// Decompressor wraps r with the configured codec. Callers must Close the
// returned reader
func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	if m == nil {
		return r, nil
	}
	f, err := m.format()
	if err != nil {
		return nil, err
	}
	return compression.Decompressor(string(f), r)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
