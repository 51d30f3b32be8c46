// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic opens every zstd frame. JSON text can never start with it, so a
// payload is either a frame or stored verbatim.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum payload size in bytes before compressing
	MinSize int `json:"min_size" yaml:"min_size" toml:"min_size"`
	// Compression level (1=fastest, 4=best)
	Level int `json:"level" yaml:"level" toml:"level"`
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		Level:   2,
	}
}

// Codec seals blob payloads for storage and opens them again.
type Codec struct {
	opts CompressionOptions

	encoders sync.Pool
	decoders sync.Pool
}

func NewCodec(opts CompressionOptions) (*Codec, error) {
	if opts.Level == 0 {
		opts.Level = DefaultCompressionOptions().Level
	}
	level := zstd.EncoderLevelFromZstd(opts.Level)

	// Fail fast on options the pools would otherwise swallow
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	c := &Codec{opts: opts}
	c.encoders.New = func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
		return enc
	}
	c.decoders.New = func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	}
	c.encoders.Put(enc)
	c.decoders.Put(dec)
	return c, nil
}

// Seal compresses payload when it is large enough to be worth it.
func (c *Codec) Seal(payload []byte) []byte {
	if len(payload) < c.opts.MinSize {
		return payload
	}

	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)

	sealed := enc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
	if len(sealed) >= len(payload) {
		return payload
	}
	return sealed
}

// Open reverses Seal.
func (c *Codec) Open(sealed []byte) ([]byte, error) {
	if !IsCompressed(sealed) {
		return sealed, nil
	}

	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	payload, err := dec.DecodeAll(sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	return payload, nil
}

func IsCompressed(data []byte) bool {
	return len(data) > len(zstdMagic) && bytes.Equal(data[:len(zstdMagic)], zstdMagic)
}
