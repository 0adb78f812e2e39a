package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxDecoded bounds the size of a single inflated payload.
const DefaultMaxDecoded = 64 << 20

var (
	ErrInvalidLevel = errors.New("invalid compression level")
	ErrInflate      = errors.New("inflate failed")
)

// Codec compresses block payloads. It is stateless from the caller's point
// of view and safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a codec. level is one of fastest, default, better or best.
func New(level string, maxDecoded uint64) (*Codec, error) {
	var encoderLevel zstd.EncoderLevel
	switch strings.ToLower(level) {
	case "fastest":
		encoderLevel = zstd.SpeedFastest
	case "", "default":
		encoderLevel = zstd.SpeedDefault
	case "better":
		encoderLevel = zstd.SpeedBetterCompression
	case "best":
		encoderLevel = zstd.SpeedBestCompression
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidLevel, level)
	}
	if maxDecoded == 0 {
		maxDecoded = DefaultMaxDecoded
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded), zstd.WithDecoderConcurrency(0))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

func (c *Codec) Compress(data []byte) []byte {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (c *Codec) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInflate, err)
	}
	return out, nil
}

// Pack compresses data when that makes it smaller. It reports whether the
// returned payload is compressed.
func (c *Codec) Pack(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return data, false
	}
	packed := c.Compress(data)
	if len(packed) >= len(data) {
		return data, false
	}
	return packed, true
}

// Unpack reverses Pack.
func (c *Codec) Unpack(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	return c.Decompress(data)
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}
