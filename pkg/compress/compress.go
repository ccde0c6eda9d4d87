// Package compress shrinks large payloads before they cross into the durable
// tier. Encoding is deterministic and lossless: Decode(Encode(p)) == p for
// every payload, and payloads below the threshold are stored as-is behind a
// one byte header.
//
// Frame layout:
//
//	[algorithm byte][body]                      none, zstd
//	[algorithm byte][uvarint raw length][body]  lz4
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies the compressor used for a frame.
type Algorithm byte

const (
	None Algorithm = 0
	Zstd Algorithm = 1
	LZ4  Algorithm = 2
)

const (
	// DefaultThreshold is the payload size, in bytes, above which compression applies.
	DefaultThreshold = 2048

	// DefaultMaxDecodedBytes caps the size a frame may claim to decode to.
	DefaultMaxDecodedBytes = 64 << 20

	// lz4MaxRatio is the largest expansion an LZ4 block can encode.
	lz4MaxRatio = 255
)

// ErrMalformed is returned when a frame cannot be decoded.
var ErrMalformed = errors.New("malformed compressed frame")

// ParseAlgorithm maps a configured algorithm name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %q", name)
	}
}

func (a Algorithm) String() string {
	switch a {
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return "none"
	}
}

// Config holds configuration for a Codec.
type Config struct {
	// Algorithm used for payloads above Threshold.
	Algorithm Algorithm

	// Threshold in bytes. Zero means DefaultThreshold.
	Threshold int

	// MaxDecodedBytes rejects frames that decode to more than this. Zero
	// means DefaultMaxDecodedBytes.
	MaxDecodedBytes int
}

// Codec encodes and decodes payload frames. It is safe for concurrent use.
type Codec struct {
	config Config
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// NewCodec creates a Codec.
func NewCodec(c Config) (*Codec, error) {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MaxDecodedBytes <= 0 {
		c.MaxDecodedBytes = DefaultMaxDecodedBytes
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(c.MaxDecodedBytes)))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Codec{
		config: c,
		enc:    enc,
		dec:    dec,
	}, nil
}

// Encode frames payload, compressing it when it is above the threshold and
// compression actually helps.
func (c *Codec) Encode(payload []byte) ([]byte, error) {
	if c.config.Algorithm == None || len(payload) < c.config.Threshold {
		return frame(None, payload), nil
	}

	var body []byte
	switch c.config.Algorithm {
	case Zstd:
		body = c.enc.EncodeAll(payload, nil)

	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// incompressible
			return frame(None, payload), nil
		}
		body = binary.AppendUvarint(nil, uint64(len(payload)))
		body = append(body, buf[:n]...)

	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", c.config.Algorithm)
	}

	if len(body) >= len(payload) {
		return frame(None, payload), nil
	}

	return frame(c.config.Algorithm, body), nil
}

// Decode reverses Encode. Frames written with any algorithm can be decoded
// regardless of the codec's configured algorithm. Frames claiming more than
// MaxDecodedBytes are malformed.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrMalformed
	}

	body := data[1:]
	switch Algorithm(data[0]) {
	case None:
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil

	case Zstd:
		out, err := c.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrMalformed, err)
		}
		return out, nil

	case LZ4:
		size, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, fmt.Errorf("%w: lz4 length header", ErrMalformed)
		}
		block := body[n:]
		if size > uint64(c.config.MaxDecodedBytes) || size > uint64(len(block))*lz4MaxRatio {
			return nil, fmt.Errorf("%w: lz4 length %d out of range for a %d byte block", ErrMalformed, size, len(block))
		}
		out := make([]byte, size)
		m, err := lz4.UncompressBlock(block, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrMalformed, err)
		}
		if uint64(m) != size {
			return nil, fmt.Errorf("%w: lz4 length %d, want %d", ErrMalformed, m, size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrMalformed, data[0])
	}
}

// Ratio reports raw/encoded size for diagnostics. It is a tuning signal only.
func Ratio(raw, encoded []byte) float64 {
	if len(encoded) == 0 {
		return 0
	}

	return float64(len(raw)) / float64(len(encoded))
}

// Close releases the zstd encoder and decoder.
func (c *Codec) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

func frame(a Algorithm, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(a))
	return append(out, body...)
}
