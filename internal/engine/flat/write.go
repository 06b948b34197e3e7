package flat

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode builds a flat payload from vectors in row order. dim may be zero when
// vectors is non-empty, in which case it is taken from the first row.
func Encode(metric Metric, compression Compression, dim int, vectors [][]float32) ([]byte, error) {
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dim: %d", dim)
	}
	if metric > InnerProduct {
		return nil, fmt.Errorf("unsupported metric: %s", metric)
	}
	if uint64(len(vectors)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many vectors: %d", len(vectors))
	}

	body := make([]byte, 0, len(vectors)*dim*4)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dim %d, want %d", i, len(v), dim)
		}
		for _, x := range v {
			body = binary.LittleEndian.AppendUint32(body, math.Float32bits(x))
		}
	}

	body, err := compressBody(body, compression)
	if err != nil {
		return nil, err
	}

	h := Header{Metric: metric, Compression: compression, Dim: dim, Count: len(vectors)}
	return append(h.marshal(), body...), nil
}
