package flat

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"unsafe"

	"github.com/kamusis/memview/internal/engine"
)

var nativeLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// DefaultMaxBodySize bounds the uncompressed vector body an Engine will load.
const DefaultMaxBodySize int64 = 16 << 30

// Engine opens flat payloads.
type Engine struct {
	workers     int
	maxBodySize int64
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many goroutines scan a large index in parallel.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMaxBodySize sets the largest uncompressed body, in bytes, Open accepts.
func WithMaxBodySize(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBodySize = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns a flat Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers:     runtime.GOMAXPROCS(0),
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ engine.Engine = (*Engine)(nil)

// Open loads the flat payload at path. Uncompressed payloads are memory-mapped
// where the platform allows it; compressed ones are inflated into memory.
func (e *Engine) Open(ctx context.Context, path string) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrOpenFailed, err)
	}
	ix, err := e.open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrOpenFailed, path, err)
	}
	e.logger.Debug("flat index opened",
		"path", path,
		"metric", ix.header.Metric.String(),
		"compression", ix.header.Compression.String(),
		"dimension", ix.header.Dim,
		"count", ix.header.Count,
	)
	return ix, nil
}

func (e *Engine) open(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	hb := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hb); err != nil {
		return nil, fmt.Errorf("%w: cannot read header: %w", ErrCorrupt, err)
	}
	h, err := parseHeader(hb)
	if err != nil {
		return nil, err
	}

	want, err := h.bodySize(e.maxBodySize)
	if err != nil {
		return nil, err
	}
	if h.Compression == CompressionNone {
		if st.Size()-headerSize != want {
			return nil, fmt.Errorf("%w: body is %d bytes, want %d (count=%d dim=%d)",
				ErrCorrupt, st.Size()-headerSize, want, h.Count, h.Dim)
		}
		data, unmap, err := mapFile(f, int(st.Size()))
		if err != nil {
			return nil, fmt.Errorf("cannot map %s: %w", path, err)
		}
		var body []byte
		if data != nil {
			body = data[headerSize:]
		}
		return newIndex(h, floatsFromBytes(body), unmap, e.workers), nil
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	body, err := decompressBody(raw, h.Compression, want)
	if err != nil {
		return nil, err
	}
	return newIndex(h, floatsFromBytes(body), nil, e.workers), nil
}

// floatsFromBytes reinterprets little-endian float32 data. The slice aliases b
// when the host layout allows it and is a decoded copy otherwise.
func floatsFromBytes(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	if nativeLittleEndian && uintptr(unsafe.Pointer(&b[0]))%4 == 0 {
		return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
