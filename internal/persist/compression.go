package persist

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec applied to each section
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression accepts "zstd", "lz4", "none" or "" (zstd)
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

// compress returns the stored bytes and the codec actually used. Data that
// does not shrink is stored raw.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	if len(data) == 0 {
		return data, CompressionNone, nil
	}

	var out []byte
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, 0, err
		}
		out = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, 0, fmt.Errorf("unknown compression %d", c)
	}

	if len(out) == 0 || len(out) >= len(data) {
		return data, CompressionNone, nil
	}
	return out, c, nil
}

// decompress restores a section of rawLen bytes
func decompress(data []byte, c Compression, rawLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(data) != rawLen {
			return nil, fmt.Errorf("%w: raw section is %d bytes, want %d", ErrCorrupt, len(data), rawLen)
		}
		return data, nil
	case CompressionLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("%w: lz4 section is %d bytes, want %d", ErrCorrupt, n, rawLen)
		}
		return out, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if len(out) != rawLen {
			return nil, fmt.Errorf("%w: zstd section is %d bytes, want %d", ErrCorrupt, len(out), rawLen)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, c)
}
