// Package compression encodes reproducer artifacts.
//
// A stored reproducer is a frame: one byte naming the compression type, followed
// by the (possibly compressed) payload. Readers never need the file extension to
// decode a frame; the extension is only a hint for humans.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnsupported is returned for unknown compression types.
var ErrUnsupported = errors.New("unsupported compression type")

// ErrCorruptFrame is returned when a frame is empty or its payload does not decode.
var ErrCorruptFrame = errors.New("corrupt compression frame")

// Type represents a compression algorithm.
type Type uint8

const (
	// NoCompression stores the payload as-is.
	NoCompression Type = 0x0

	// SnappyCompression uses Google Snappy block encoding.
	SnappyCompression Type = 0x1

	// LZ4Compression uses the LZ4 frame format.
	LZ4Compression Type = 0x4

	// ZstdCompression uses Zstandard.
	ZstdCompression Type = 0x7
)

// String returns the name accepted by ParseType.
func (t Type) String() string {
	switch t {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case LZ4Compression:
		return "lz4"
	case ZstdCompression:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Extension returns the file suffix for payloads of this type, including the dot.
func (t Type) Extension() string {
	switch t {
	case SnappyCompression:
		return ".snappy"
	case LZ4Compression:
		return ".lz4"
	case ZstdCompression:
		return ".zst"
	default:
		return ""
	}
}

// IsSupported returns true if the compression type can be encoded and decoded.
func (t Type) IsSupported() bool {
	switch t {
	case NoCompression, SnappyCompression, LZ4Compression, ZstdCompression:
		return true
	default:
		return false
	}
}

// ParseType converts a name such as "zstd" into a Type. The empty string means none.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoCompression, nil
	case "snappy":
		return SnappyCompression, nil
	case "lz4":
		return LZ4Compression, nil
	case "zstd", "zst":
		return ZstdCompression, nil
	default:
		return NoCompression, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.IsSupported() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupported, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Compress compresses data using the specified compression type.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Encode(nil, data), nil
	case LZ4Compression:
		return compressLZ4(data)
	case ZstdCompression:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
		return nil, fmt.Errorf("lz4 apply level: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer func() { _ = encoder.Close() }()
	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses data using the specified compression type.
func Decompress(t Type, data []byte) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Decode(nil, data)
	case LZ4Compression:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	case ZstdCompression:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}

// Frame compresses data and prefixes the result with its type byte.
// Empty data is always stored uncompressed.
func Frame(t Type, data []byte) ([]byte, error) {
	if len(data) == 0 {
		t = NoCompression
	}
	payload, err := Compress(t, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(t))
	return append(out, payload...), nil
}

// Unframe reverses Frame. It returns the decoded data and the type it was stored with.
func Unframe(frame []byte) ([]byte, Type, error) {
	if len(frame) == 0 {
		return nil, NoCompression, fmt.Errorf("%w: empty", ErrCorruptFrame)
	}
	t := Type(frame[0])
	if !t.IsSupported() {
		return nil, t, fmt.Errorf("%w: %d", ErrUnsupported, frame[0])
	}
	data, err := Decompress(t, frame[1:])
	if err != nil {
		return nil, t, fmt.Errorf("%w: %s: %v", ErrCorruptFrame, t, err)
	}
	return data, t, nil
}
