package encoder

import "math"

// Norm returns the Euclidean (L2) norm of v.
// Accumulates eight lanes at a time so the compiler can auto-vectorize.
func Norm(v []float32) float64 {
	var sum float32
	n := len(v)
	limit := n - (n % 8)

	for i := 0; i < limit; i += 8 {
		sum += v[i]*v[i] + v[i+1]*v[i+1] + v[i+2]*v[i+2] + v[i+3]*v[i+3] +
			v[i+4]*v[i+4] + v[i+5]*v[i+5] + v[i+6]*v[i+6] + v[i+7]*v[i+7]
	}
	for i := limit; i < n; i++ {
		sum += v[i] * v[i]
	}

	return math.Sqrt(float64(sum))
}

// NormalizeInPlace scales v to unit L2 norm. A zero vector is left as-is
// to avoid division by zero.
func NormalizeInPlace(v []float32) {
	norm := Norm(v)
	if norm == 0 {
		return
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
}
