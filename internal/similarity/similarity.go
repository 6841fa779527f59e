package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors differ in length
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Score squashes both vectors with tanh, L2-normalizes them and returns
// their cosine similarity. A vector that is all zeros scores 0.
func Score(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	ua := unit(squash(a))
	ub := unit(squash(b))

	var dot float64
	for i := range ua {
		dot += ua[i] * ub[i]
	}
	// guard against rounding pushing identical vectors past 1
	return math.Max(-1, math.Min(1, dot)), nil
}

// Accuracy rescales a similarity score to a percentage rounded to two
// decimal places.
func Accuracy(score float64) float64 {
	return math.Round(score*100*100) / 100
}

func squash(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Tanh(float64(x))
	}
	return out
}

func unit(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}
