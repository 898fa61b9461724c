package verse

import "slices"

// Keyword weight defaults.
const (
	DefaultKeywordWeight = 0.5
	DefaultKeywordDecay  = 0.2
	DefaultKeywordFloor  = 0.01
)

// KeywordSeeds holds the optional literal prefix of a generation and the
// candidate line-start keywords with their inclusion weights.
//
// A keyword's weight only ever decreases: each time it is chosen it drops to
// max(decay*weight, floor). KeywordSeeds belongs to a single generation and
// is not safe for concurrent use.
type KeywordSeeds struct {
	prefix   string
	keywords []string
	weights  []float64

	decay float64
	floor float64
}

// SeedOption configures KeywordSeeds.
type SeedOption func(*seedOptions)

type seedOptions struct {
	initial float64
	decay   float64
	floor   float64
}

// WithInitialWeight sets the starting inclusion weight of every keyword.
func WithInitialWeight(w float64) SeedOption {
	return func(o *seedOptions) { o.initial = w }
}

// WithDecay sets the factor applied to a keyword's weight each time it is chosen.
func WithDecay(d float64) SeedOption {
	return func(o *seedOptions) { o.decay = d }
}

// WithWeightFloor sets the lowest weight a keyword can decay to.
func WithWeightFloor(f float64) SeedOption {
	return func(o *seedOptions) { o.floor = f }
}

// NewKeywordSeeds creates seeds for one generation. prefix may be empty.
// Empty keywords are ignored.
func NewKeywordSeeds(prefix string, keywords []string, opts ...SeedOption) *KeywordSeeds {
	o := seedOptions{
		initial: DefaultKeywordWeight,
		decay:   DefaultKeywordDecay,
		floor:   DefaultKeywordFloor,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &KeywordSeeds{prefix: prefix, decay: o.decay, floor: o.floor}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		s.keywords = append(s.keywords, kw)
		s.weights = append(s.weights, o.initial)
	}
	return s
}

// Prefix returns the literal text the generation starts with, if any.
func (s *KeywordSeeds) Prefix() string { return s.prefix }

// Keywords returns the candidate keywords in order.
func (s *KeywordSeeds) Keywords() []string { return slices.Clone(s.keywords) }

// Weights returns the current inclusion weights, aligned with Keywords.
func (s *KeywordSeeds) Weights() []float64 { return slices.Clone(s.weights) }

// NextLineKeyword decides whether the line that is about to start should
// begin with a keyword, and which one. It is called once per line break.
//
// With probability 1-max(weights) nothing is returned. Otherwise a keyword
// is drawn in proportion to the weights and its weight is decayed.
func (s *KeywordSeeds) NextLineKeyword(src Source) (string, bool) {
	if s == nil || len(s.keywords) == 0 {
		return "", false
	}
	if src.Float64() > slices.Max(s.weights) {
		return "", false
	}

	indices := make([]int, len(s.keywords))
	for i := range indices {
		indices[i] = i
	}
	i := SampleWeighted(src, indices, s.weights)
	s.weights[i] = max(s.decay*s.weights[i], s.floor)

	return s.keywords[i], true
}
