package verse

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/floats"
)

// Numerical defaults of the temperature policy.
const (
	// DefaultProbabilityFloor is the smallest probability taken to the log.
	DefaultProbabilityFloor = 1e-37
	// DefaultDegenerateMass is the total temperature-scaled mass at or below
	// which the distribution is treated as underflowed.
	DefaultDegenerateMass = 1e-16
)

// Sampler draws characters from a Predictor. It owns the temperature
// scaling policy and the exclusive right to drive the predictor's state:
// at most one Stream is open on a Sampler at a time.
type Sampler struct {
	model Predictor
	vocab *Vocabulary
	src   Source

	floor      float64
	degenerate float64

	busy *semaphore.Weighted
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithSource sets the randomness used for draws.
func WithSource(src Source) SamplerOption {
	return func(s *Sampler) { s.src = src }
}

// WithProbabilityFloor sets the lower clamp applied before taking logs.
func WithProbabilityFloor(floor float64) SamplerOption {
	return func(s *Sampler) { s.floor = floor }
}

// WithDegenerateMass sets the underflow threshold of the scaled distribution.
func WithDegenerateMass(mass float64) SamplerOption {
	return func(s *Sampler) { s.degenerate = mass }
}

// NewSampler binds a predictor to a vocabulary.
func NewSampler(model Predictor, vocab *Vocabulary, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		model:      model,
		vocab:      vocab,
		floor:      DefaultProbabilityFloor,
		degenerate: DefaultDegenerateMass,
		busy:       semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.src == nil {
		s.src = NewSource(0)
	}
	return s
}

// Vocabulary returns the vocabulary the sampler encodes with.
func (s *Sampler) Vocabulary() *Vocabulary { return s.vocab }

// acquire blocks until no other stream is driving the model.
func (s *Sampler) acquire(ctx context.Context) error {
	return s.busy.Acquire(ctx, 1)
}

func (s *Sampler) release() { s.busy.Release(1) }

// ResetState returns the model to its start condition. Call it once at the
// start of an independent generation, never between characters of one.
func (s *Sampler) ResetState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.model.Reset(ctx); err != nil {
		return fmt.Errorf("reset model: %w", err)
	}
	return nil
}

// Advance feeds text through the model one character at a time and
// discards the predictions.
func (s *Sampler) Advance(ctx context.Context, text string) error {
	for _, r := range text {
		if _, err := s.predict(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// SampleNext feeds current to the model and draws the next character from
// the temperature-scaled prediction.
func (s *Sampler) SampleNext(ctx context.Context, current rune, temperature float64) (rune, error) {
	if !validTemperature(temperature) {
		return 0, ErrInvalidTemperature
	}

	q, err := s.predict(ctx, current)
	if err != nil {
		return 0, err
	}

	p := scaleProbabilities(q, temperature, s.floor, s.degenerate)
	return s.vocab.Decode(s.draw(p)), nil
}

func (s *Sampler) predict(ctx context.Context, r rune) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := s.model.Predict(ctx, s.vocab.Encode(r))
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(q) != s.vocab.Size() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVectorSize, len(q), s.vocab.Size())
	}
	return q, nil
}

// draw returns a token id distributed according to p.
func (s *Sampler) draw(p []float64) int {
	ids := make([]int, len(p))
	for i := range ids {
		ids[i] = i
	}
	return SampleWeighted(s.src, ids, p)
}

func validTemperature(t float64) bool {
	return t > 0 && !math.IsInf(t, 0)
}

// scaleProbabilities applies temperature to a raw prediction q:
//
//	p_i = exp(log(max(q_i, floor))/t - logSumExp(log(max(q, floor))/t))
//
// When the clamped mass of q is at or below degenerate, or the result is not
// finite, the underflowed values are discarded in favour of a one-hot vector
// on the argmax of q. The threshold does not depend on temperature.
func scaleProbabilities(q []float64, temperature, floor, degenerate float64) []float64 {
	logQt := make([]float64, len(q))
	mass := 0.0
	for i, v := range q {
		if !(v >= floor) {
			v = floor
		}
		mass += v
		logQt[i] = math.Log(v) / temperature
	}
	if !(mass > degenerate) || math.IsInf(mass, 0) {
		return oneHot(q)
	}

	scaling := floats.LogSumExp(logQt)
	if math.IsNaN(scaling) || math.IsInf(scaling, 0) {
		return oneHot(q)
	}

	p := make([]float64, len(q))
	for i, v := range logQt {
		p[i] = math.Exp(v - scaling)
	}
	if sum := floats.Sum(p); !(sum > degenerate) || math.IsInf(sum, 0) {
		return oneHot(q)
	}
	return p
}

// oneHot puts all mass on the argmax of q, skipping NaN entries.
func oneHot(q []float64) []float64 {
	best := 0
	for i, v := range q {
		if v > q[best] || math.IsNaN(q[best]) {
			best = i
		}
	}
	p := make([]float64, len(q))
	p[best] = 1
	return p
}
