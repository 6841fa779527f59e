package similarity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		a := randomVector(rng, 32)
		b := randomVector(rng, 32)
		ab, err := Score(a, b)
		require.NoError(t, err)
		ba, err := Score(b, a)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
	}
}

func TestIdenticalVectorsScoreOne(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		a := randomVector(rng, 400)
		s, err := Score(a, append([]float32(nil), a...))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-12)
		assert.Equal(t, 100.0, Accuracy(s))
	}
}

func TestScoreBounds(t *testing.T) {
	s, err := Score([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s, 1e-12)

	s, err = Score([]float32{2, -3}, []float32{-2, 3})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, s, 1e-12)
}

func TestZeroVectorScoresZero(t *testing.T) {
	s, err := Score([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, s)
}

func TestDimensionMismatch(t *testing.T) {
	_, err := Score([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAccuracyRounding(t *testing.T) {
	assert.Equal(t, 87.65, Accuracy(0.876543))
	assert.Equal(t, 0.0, Accuracy(0))
	assert.Equal(t, 12.35, Accuracy(0.12346))
}

func randomVector(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(rng.NormFloat64() * 3)
	}
	return v
}
