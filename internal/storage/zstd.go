package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/valyala/gozstd"
)

// ============================================================================
// ZSTD COMPRESSION LAYER
// ============================================================================

// CompressionLevel is the level used for archive frames
const CompressionLevel = 3

// CompressFrame compresses data into one self-contained zstd frame.
// Frames can be concatenated and still decode as a single stream.
func CompressFrame(data []byte) []byte {
	return gozstd.CompressLevel(nil, data, CompressionLevel)
}

// DecompressAll decompresses every frame in compressed
func DecompressAll(compressed []byte) ([]byte, error) {
	reader := gozstd.NewReader(bytes.NewReader(compressed))
	defer reader.Release()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return decompressed, nil
}

// StreamReader is a streaming decompression reader
type StreamReader interface {
	io.Reader
	Release()
}

// NewStreamingReader creates a streaming decompressor over r.
// The reader must be released with Release().
func NewStreamingReader(r io.Reader) StreamReader {
	return &gozstdReader{reader: gozstd.NewReader(r)}
}

type gozstdReader struct {
	reader *gozstd.Reader
}

func (r *gozstdReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *gozstdReader) Release() {
	r.reader.Release()
}
