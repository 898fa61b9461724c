package verse

import (
	"context"
	"iter"
	"strings"
	"sync"
)

// Stream is an unbounded, lazily produced sequence of verse characters
// grouped into lines. Nothing is computed until the caller pulls, so a
// caller that stops pulling stops all model calls.
//
// A Stream holds its Sampler exclusively until Close or until a model error
// ends it. It is not safe for concurrent use; cancel a pull in progress
// through its context rather than by calling Close from another goroutine.
type Stream struct {
	sampler     *Sampler
	seeds       *KeywordSeeds
	temperature float64

	pending  []rune // emitted but not yet returned
	current  rune   // last character fed or to be fed to the model
	injected bool   // current ends a keyword that was just injected

	stats     Stats
	err       error
	closeOnce sync.Once
}

// Stats counts what a Stream has produced so far.
type Stats struct {
	Runes    int
	Lines    int
	Keywords int
}

// Start opens a verse stream on sampler. It waits until no other stream is
// open on the same sampler, resets the model and feeds it the prefix.
//
// The prefix is seeds.Prefix() or, when that is empty, one upper-case letter
// of the vocabulary chosen uniformly. The prefix is emitted verbatim as the
// first characters of the stream. seeds may be nil.
func Start(ctx context.Context, sampler *Sampler, temperature float64, seeds *KeywordSeeds) (*Stream, error) {
	if !validTemperature(temperature) {
		return nil, ErrInvalidTemperature
	}
	if seeds == nil {
		seeds = NewKeywordSeeds("", nil)
	}
	if err := sampler.acquire(ctx); err != nil {
		return nil, err
	}

	s := &Stream{
		sampler:     sampler,
		seeds:       seeds,
		temperature: temperature,
	}

	prefix := []rune(seeds.Prefix())
	if len(prefix) == 0 {
		prefix = []rune{sampler.startCharacter()}
	}

	if err := sampler.ResetState(ctx); err != nil {
		s.fail(err)
		return nil, err
	}
	if err := sampler.Advance(ctx, string(prefix[:len(prefix)-1])); err != nil {
		s.fail(err)
		return nil, err
	}

	s.pending = prefix
	s.current = prefix[len(prefix)-1]
	return s, nil
}

// startCharacter picks the first character of an unseeded stream.
func (s *Sampler) startCharacter() rune {
	candidates := s.vocab.Uppercase()
	if len(candidates) == 0 {
		candidates = s.vocab.Chars()
	}
	return candidates[s.src.IntN(len(candidates))]
}

// NextRune returns the next character of the stream.
func (s *Stream) NextRune(ctx context.Context) (rune, error) {
	if s.err != nil {
		return 0, s.err
	}

	if len(s.pending) == 0 {
		if err := s.produce(ctx); err != nil {
			s.fail(err)
			return 0, err
		}
	}

	r := s.pending[0]
	s.pending = s.pending[1:]
	s.stats.Runes++
	return r, nil
}

// produce appends at least one character to pending.
func (s *Stream) produce(ctx context.Context) error {
	if s.current == '\n' && !s.injected {
		if kw, ok := s.seeds.NextLineKeyword(s.sampler.src); ok {
			kwRunes := []rune(kw)
			if err := s.sampler.Advance(ctx, "\n"+string(kwRunes[:len(kwRunes)-1])); err != nil {
				return err
			}
			s.pending = append(s.pending, kwRunes...)
			s.current = kwRunes[len(kwRunes)-1]
			s.injected = true
			s.stats.Keywords++
			return nil
		}
	}

	next, err := s.sampler.SampleNext(ctx, s.current, s.temperature)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, next)
	s.current = next
	s.injected = false
	return nil
}

// NextLine returns the next complete line, including its trailing line
// break. The characters of a line that fails midway are discarded.
func (s *Stream) NextLine(ctx context.Context) (string, error) {
	var sb strings.Builder
	for {
		r, err := s.NextRune(ctx)
		if err != nil {
			return "", err
		}
		sb.WriteRune(r)
		if r == '\n' {
			s.stats.Lines++
			return sb.String(), nil
		}
	}
}

// Lines returns the stream as a pull iterator of lines. The sequence ends
// after the first error, which is yielded with an empty line. Breaking out
// of the loop stops production; the stream must still be closed.
func (s *Stream) Lines(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := s.NextLine(ctx)
			if !yield(line, err) || err != nil {
				return
			}
		}
	}
}

// Stats returns the production counters.
func (s *Stream) Stats() Stats { return s.stats }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Close ends the stream and releases the sampler for the next one.
// It is safe to call more than once.
func (s *Stream) Close() error {
	s.release()
	if s.err == nil {
		s.err = ErrClosed
	}
	return nil
}

func (s *Stream) fail(err error) {
	s.err = err
	s.release()
}

func (s *Stream) release() {
	s.closeOnce.Do(s.sampler.release)
}
