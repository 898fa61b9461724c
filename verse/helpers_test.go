package verse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errModel = errors.New("model unavailable")

// testTable is a small Finnish-flavoured vocabulary.
var testTable = map[string]int{
	"\n": 0, " ": 1, "V": 2, "a": 3, "k": 4,
	"S": 5, "u": 6, "o": 7, "m": 8, "i": 9, "x": 10,
}

func testVocabulary(t *testing.T) *Vocabulary {
	t.Helper()
	v, err := NewVocabulary(testTable)
	require.NoError(t, err)
	return v
}

// fixedSource always returns the same numbers.
type fixedSource struct {
	f float64
	n int
}

func (s fixedSource) Float64() float64 { return s.f }
func (s fixedSource) IntN(n int) int   { return s.n % n }

// transitionModel predicts a fixed next character for every input
// character as a one-hot vector and records every call.
type transitionModel struct {
	vocab     *Vocabulary
	next      map[rune]rune
	calls     []rune
	resets    int
	failAfter int // fail on this predict call, 1-based; 0 never fails
}

func (m *transitionModel) Predict(_ context.Context, token int) ([]float64, error) {
	r := m.vocab.Decode(token)
	m.calls = append(m.calls, r)
	if m.failAfter > 0 && len(m.calls) >= m.failAfter {
		return nil, errModel
	}
	n, ok := m.next[r]
	if !ok {
		n = ' '
	}
	q := make([]float64, m.vocab.Size())
	q[m.vocab.Encode(n)] = 1
	return q, nil
}

func (m *transitionModel) Reset(context.Context) error {
	m.resets++
	return nil
}

// vakaTransitions produce the repeating line "Vak\n".
var vakaTransitions = map[rune]rune{
	'\n': 'V',
	'V':  'a',
	'a':  'k',
	'k':  '\n',
	'S':  'u',
	'u':  'o',
	'o':  'm',
	'm':  'i',
	'i':  '\n',
}

// vectorModel returns the same vector for every call.
type vectorModel struct {
	q     []float64
	calls int
	err   error
}

func (m *vectorModel) Predict(context.Context, int) ([]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]float64(nil), m.q...), nil
}

func (m *vectorModel) Reset(context.Context) error { return m.err }
