// Package verse turns next-character probability vectors from a stateful
// character-level model into an unbounded, lazily produced stream of verse
// lines.
//
// The model itself is supplied by the caller through the Predictor
// interface. A Sampler binds one Predictor to one Vocabulary; Start opens a
// Stream on it. Only one Stream may be open per Sampler at a time.
package verse

import (
	"context"
	"errors"
	"math/rand/v2"
)

var (
	// ErrInvalidTemperature is returned when the sampling temperature is not
	// a finite, strictly positive number.
	ErrInvalidTemperature = errors.New("verse: temperature must be positive")

	// ErrInvalidVocabulary is returned when a character table is not a
	// bijection onto [0, n) or lacks the space character.
	ErrInvalidVocabulary = errors.New("verse: invalid vocabulary")

	// ErrVectorSize is returned when the model produces a probability vector
	// whose length differs from the vocabulary size.
	ErrVectorSize = errors.New("verse: probability vector size does not match vocabulary")

	// ErrClosed is returned by a Stream after Close.
	ErrClosed = errors.New("verse: stream closed")
)

// Predictor is a stateful next-character model.
//
// Predict advances the internal state by one token and returns the
// distribution over the next token. The returned vector has one entry per
// vocabulary id; it need not be normalized.
//
// Reset returns the model to its start condition. It must be idempotent.
type Predictor interface {
	Predict(ctx context.Context, token int) ([]float64, error)
	Reset(ctx context.Context) error
}

// Source supplies the randomness used for sampling. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	// Float64 returns a uniform number in [0, 1).
	Float64() float64
	// IntN returns a uniform integer in [0, n).
	IntN(n int) int
}

// NewSource returns a Source seeded from seed. A zero seed draws from the
// runtime's random state instead.
func NewSource(seed uint64) Source {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
