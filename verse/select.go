package verse

import (
	"context"
	"iter"
)

// DefaultVerses is the number of lines a generation keeps.
const DefaultVerses = 6

// Drop skips the first n elements of seq. Errors are never skipped.
func Drop[V any](seq iter.Seq2[V, error], n int) iter.Seq2[V, error] {
	return func(yield func(V, error) bool) {
		i := 0
		for v, err := range seq {
			if err == nil && i < n {
				i++
				continue
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

// DropWhile skips leading elements for which pred holds.
func DropWhile[V any](seq iter.Seq2[V, error], pred func(V) bool) iter.Seq2[V, error] {
	return func(yield func(V, error) bool) {
		dropping := true
		for v, err := range seq {
			if dropping && err == nil && pred(v) {
				continue
			}
			dropping = false
			if !yield(v, err) {
				return
			}
		}
	}
}

// Take yields at most n elements of seq and pulls exactly as many as it
// yields: the (n+1)th element is never produced.
func Take[V any](seq iter.Seq2[V, error], n int) iter.Seq2[V, error] {
	return func(yield func(V, error) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
			i++
			if i >= n {
				return
			}
		}
	}
}

// Verses yields n lines of s the way a reader is shown them: the first line
// is dropped because it usually starts mid-sentence, blank lines right after
// it are dropped, and the next n lines are kept. Production stops as soon as
// the n-th line is complete.
func Verses(ctx context.Context, s *Stream, n int) iter.Seq2[string, error] {
	return Take(DropWhile(Drop(s.Lines(ctx), 1), isBlankLine), n)
}

// SelectVerses collects the lines of Verses. On error it returns the verses
// completed so far.
func SelectVerses(ctx context.Context, s *Stream, n int) ([]string, error) {
	verses := make([]string, 0, max(n, 0))
	for line, err := range Verses(ctx, s, n) {
		if err != nil {
			return verses, err
		}
		verses = append(verses, line)
	}
	return verses, nil
}

func isBlankLine(line string) bool { return line == "\n" }
