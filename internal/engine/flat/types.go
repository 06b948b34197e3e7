// Package flat is an exhaustive-scan vector index engine.
//
// A flat payload is a 16-byte little-endian header followed by count*dim
// float32 values in row order, optionally compressed as a single zstd or lz4
// frame:
//
//	[0:4]   magic "MVFL"
//	[4]     version (1)
//	[5]     metric
//	[6]     compression
//	[7]     reserved
//	[8:12]  dim   uint32
//	[12:16] count uint32
package flat

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	headerSize    = 16
	formatVersion = 1
)

var magic = [4]byte{'M', 'V', 'F', 'L'}

// Metric selects the distance function. Names follow hnswlib.
type Metric uint8

const (
	// Cosine distance is 1 - cos(a, b).
	Cosine Metric = iota
	// L2 is the squared Euclidean distance.
	L2
	// InnerProduct distance is 1 - a·b.
	InnerProduct
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case L2:
		return "l2"
	case InnerProduct:
		return "ip"
	default:
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
}

// ParseMetric parses "cosine", "l2" or "ip".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine", "cos":
		return Cosine, nil
	case "l2", "euclidean":
		return L2, nil
	case "ip", "dot", "inner_product":
		return InnerProduct, nil
	default:
		return 0, fmt.Errorf("unsupported metric: %s", s)
	}
}

// Compression selects how the vector body is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZSTD
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "zstd" or "lz4".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unsupported compression: %s", s)
	}
}

// Header describes a flat payload.
type Header struct {
	Metric      Metric
	Compression Compression
	Dim         int
	Count       int
}

// bodySize returns the uncompressed body length, failing when it would exceed
// limit bytes. Dim and Count come from the payload and are not trusted.
func (h Header) bodySize(limit int64) (int64, error) {
	if h.Count == 0 {
		return 0, nil
	}
	if int64(h.Dim) > limit/4/int64(h.Count) {
		return 0, fmt.Errorf("%w: %d x %d vectors exceed the %d-byte body limit", ErrTooLarge, h.Count, h.Dim, limit)
	}
	return int64(h.Dim) * int64(h.Count) * 4, nil
}

func (h Header) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b[0:4], magic[:])
	b[4] = formatVersion
	b[5] = byte(h.Metric)
	b[6] = byte(h.Compression)
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.Dim))
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.Count))
	return b
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("%w: payload shorter than header (%d bytes)", ErrCorrupt, len(b))
	}
	if [4]byte(b[0:4]) != magic {
		return Header{}, ErrBadMagic
	}
	if b[4] != formatVersion {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[4])
	}
	h := Header{
		Metric:      Metric(b[5]),
		Compression: Compression(b[6]),
		Dim:         int(binary.LittleEndian.Uint32(b[8:12])),
		Count:       int(binary.LittleEndian.Uint32(b[12:16])),
	}
	if h.Metric > InnerProduct {
		return Header{}, fmt.Errorf("%w: unknown metric %d", ErrCorrupt, b[5])
	}
	if h.Compression > CompressionLZ4 {
		return Header{}, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, b[6])
	}
	if h.Dim <= 0 {
		return Header{}, fmt.Errorf("%w: invalid dim %d", ErrCorrupt, h.Dim)
	}
	return h, nil
}
