package verse

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestScaleProbabilitiesNormalizes(t *testing.T) {
	q := []float64{0.1, 0.2, 0.3, 0.4}
	for _, temp := range []float64{0.1, 0.5, 1, 2, 10} {
		p := scaleProbabilities(q, temp, DefaultProbabilityFloor, DefaultDegenerateMass)
		assert.InDelta(t, 1, floats.Sum(p), 1e-9, "temperature %v", temp)
	}
}

func TestScaleProbabilitiesUnitTemperatureKeepsDistribution(t *testing.T) {
	q := []float64{0.1, 0.2, 0.3, 0.4}
	p := scaleProbabilities(q, 1, DefaultProbabilityFloor, DefaultDegenerateMass)
	assert.InDeltaSlice(t, q, p, 1e-12)
}

func TestScaleProbabilitiesUnnormalizedInput(t *testing.T) {
	p := scaleProbabilities([]float64{2, 6}, 1, DefaultProbabilityFloor, DefaultDegenerateMass)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, p, 1e-12)
}

func TestScaleProbabilitiesTemperatureShape(t *testing.T) {
	q := []float64{0.1, 0.2, 0.3, 0.4}
	sharp := scaleProbabilities(q, 0.5, DefaultProbabilityFloor, DefaultDegenerateMass)
	flat := scaleProbabilities(q, 2, DefaultProbabilityFloor, DefaultDegenerateMass)

	assert.Greater(t, sharp[3], q[3])
	assert.Less(t, flat[3], q[3])
	assert.Greater(t, flat[0], q[0])
}

func TestScaleProbabilitiesZeroEntries(t *testing.T) {
	p := scaleProbabilities([]float64{0, 1, 0}, 1, DefaultProbabilityFloor, DefaultDegenerateMass)
	for _, v := range p {
		assert.False(t, math.IsNaN(v))
	}
	assert.InDelta(t, 1, p[1], 1e-30)
}

func TestScaleProbabilitiesDegenerateFallsBackToArgmax(t *testing.T) {
	q := []float64{1e-30, 3e-30, 2e-30, 1e-31}
	p := scaleProbabilities(q, 1, DefaultProbabilityFloor, DefaultDegenerateMass)
	assert.Equal(t, []float64{0, 1, 0, 0}, p)

	// The same vector again gives the same answer.
	assert.Equal(t, p, scaleProbabilities(q, 1, DefaultProbabilityFloor, DefaultDegenerateMass))
}

func TestScaleProbabilitiesNonFiniteFallsBackToArgmax(t *testing.T) {
	p := scaleProbabilities([]float64{0.2, math.NaN(), 0.5}, 1, DefaultProbabilityFloor, DefaultDegenerateMass)
	assert.InDelta(t, 1, floats.Sum(p), 1e-9)

	p = scaleProbabilities([]float64{0.2, math.Inf(1), 0.5}, 1, DefaultProbabilityFloor, DefaultDegenerateMass)
	assert.Equal(t, []float64{0, 1, 0}, p)
}

func TestScaleProbabilitiesConfigurableThreshold(t *testing.T) {
	q := []float64{0.01, 0.02}
	p := scaleProbabilities(q, 1, DefaultProbabilityFloor, 0.5)
	assert.Equal(t, []float64{0, 1}, p)
}

func TestScaleProbabilitiesFlatVectorAtLowTemperature(t *testing.T) {
	q := make([]float64, 80)
	for i := range q {
		q[i] = 1.0 / 80
	}
	q[5] += 1e-6

	p := scaleProbabilities(q, 0.1, DefaultProbabilityFloor, DefaultDegenerateMass)
	nonzero := 0
	for _, v := range p {
		if v > 0 {
			nonzero++
		}
	}
	assert.Greater(t, nonzero, 1)
	assert.InDelta(t, 1, floats.Sum(p), 1e-9)
	assert.Less(t, p[5], 0.5)
}

func TestScaleProbabilitiesVeryLowTemperatureKeepsRunnerUp(t *testing.T) {
	p := scaleProbabilities([]float64{0.5, 0.49, 0.01}, 0.01, DefaultProbabilityFloor, DefaultDegenerateMass)
	// (0.49/0.5)^100 / (1 + (0.49/0.5)^100) ≈ 0.117
	assert.InDelta(t, 0.117, p[1], 0.005)
	assert.InDelta(t, 1, p[0]+p[1]+p[2], 1e-9)
}

func TestSampleNextLowTemperaturePicksArgmax(t *testing.T) {
	v := testVocabulary(t)
	q := make([]float64, v.Size())
	for i := range q {
		q[i] = 0.04
	}
	q[v.Encode('a')] = 0.6

	s := NewSampler(&vectorModel{q: q}, v, WithSource(NewSource(21)))
	for range 1000 {
		r, err := s.SampleNext(context.Background(), 'V', 0.05)
		require.NoError(t, err)
		assert.Equal(t, 'a', r)
	}
}

func TestSampleNextAlwaysInVocabulary(t *testing.T) {
	v := testVocabulary(t)
	q := make([]float64, v.Size())
	for i := range q {
		q[i] = float64(i + 1)
	}

	s := NewSampler(&vectorModel{q: q}, v, WithSource(NewSource(4)))
	for range 1000 {
		r, err := s.SampleNext(context.Background(), 'Ö', 3)
		require.NoError(t, err)
		assert.True(t, v.Contains(r))
	}
}

func TestSampleNextInvalidTemperature(t *testing.T) {
	v := testVocabulary(t)
	m := &vectorModel{q: make([]float64, v.Size())}
	s := NewSampler(m, v)

	for _, temp := range []float64{0, -1, math.Inf(1), math.NaN()} {
		_, err := s.SampleNext(context.Background(), 'a', temp)
		assert.ErrorIs(t, err, ErrInvalidTemperature)
	}
	assert.Zero(t, m.calls)
}

func TestSampleNextVectorSizeMismatch(t *testing.T) {
	v := testVocabulary(t)
	s := NewSampler(&vectorModel{q: []float64{1, 2}}, v)
	_, err := s.SampleNext(context.Background(), 'a', 1)
	assert.ErrorIs(t, err, ErrVectorSize)
}

func TestSampleNextModelError(t *testing.T) {
	v := testVocabulary(t)
	s := NewSampler(&vectorModel{err: errModel}, v)
	_, err := s.SampleNext(context.Background(), 'a', 1)
	assert.ErrorIs(t, err, errModel)
	assert.ErrorIs(t, s.ResetState(context.Background()), errModel)
}

func TestAdvanceFeedsEveryCharacterInOrder(t *testing.T) {
	v := testVocabulary(t)
	m := &transitionModel{vocab: v, next: vakaTransitions}
	s := NewSampler(m, v)

	require.NoError(t, s.Advance(context.Background(), "VaÖk\n"))
	assert.Equal(t, []rune{'V', 'a', ' ', 'k', '\n'}, m.calls)
}

func TestAdvanceStopsOnCancel(t *testing.T) {
	v := testVocabulary(t)
	m := &transitionModel{vocab: v, next: vakaTransitions}
	s := NewSampler(m, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Advance(ctx, "Vaka"), context.Canceled)
	assert.Empty(t, m.calls)
}
