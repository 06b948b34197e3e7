package flat

import "math"

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float32) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}

func squaredL2(a, b []float32) float32 {
	var s float32
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// cosineDistance returns 1 - cos(a, b). A zero vector is treated as
// orthogonal to everything.
func cosineDistance(a, b []float32, na, nb float32) float32 {
	den := na * nb
	if den == 0 {
		return 1
	}
	return 1 - dot(a, b)/den
}

// NormalizeL2 returns a new vector normalized to unit L2 norm.
func NormalizeL2(v []float32) []float32 {
	out := make([]float32, len(v))
	n := norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / n
	for i := range v {
		out[i] = v[i] * inv
	}
	return out
}
