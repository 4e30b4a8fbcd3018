// internal/codec/codec.go - value compression for cached properties and thumbnails
package codec

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Algorithm names
const (
	None   = "none"
	Zstd   = "zstd"
	Snappy = "snappy"
)

// Compressor provides compression and decompression
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() string
}

// New returns the compressor for algo. level only applies to zstd; zero
// selects the default.
func New(algo string, level int) (Compressor, error) {
	switch algo {
	case "", None:
		return NoopCompressor{}, nil
	case Zstd:
		if level == 0 {
			level = 3
		}
		return NewZstdCompressor(level)
	case Snappy:
		return SnappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algo)
	}
}

// ZstdCompressor implements Compressor using zstd
type ZstdCompressor struct {
	level       int
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	encoderOnce sync.Once
	decoderOnce sync.Once
	encoderErr  error
	decoderErr  error
}

// NewZstdCompressor creates a new zstd compressor
func NewZstdCompressor(level int) (*ZstdCompressor, error) {
	if level < 1 || level > 19 {
		return nil, fmt.Errorf("zstd level must be 1-19, got %d", level)
	}
	return &ZstdCompressor{level: level}, nil
}

func (c *ZstdCompressor) getEncoder() (*zstd.Encoder, error) {
	c.encoderOnce.Do(func() {
		c.encoder, c.encoderErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
			zstd.WithEncoderConcurrency(1),
		)
	})
	return c.encoder, c.encoderErr
}

func (c *ZstdCompressor) getDecoder() (*zstd.Decoder, error) {
	c.decoderOnce.Do(func() {
		c.decoder, c.decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(64*1024*1024),
		)
	})
	return c.decoder, c.decoderErr
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	encoder, err := c.getEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get encoder: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	decoder, err := c.getDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get decoder: %w", err)
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func (c *ZstdCompressor) Algorithm() string { return Zstd }

// SnappyCompressor implements Compressor using snappy block format
type SnappyCompressor struct{}

func (SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}

func (SnappyCompressor) Algorithm() string { return Snappy }

// NoopCompressor is a pass-through compressor
type NoopCompressor struct{}

func (NoopCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoopCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (NoopCompressor) Algorithm() string                      { return None }
