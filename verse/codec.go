package verse

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Vocabulary maps characters to model token ids and back.
// It is immutable after construction and safe for concurrent use.
type Vocabulary struct {
	ids     map[rune]int
	chars   []rune
	spaceID int
}

// NewVocabulary builds a Vocabulary from a character-to-id table such as the
// one stored in char2idx.json. Every key must be a single character, the ids
// must cover [0, len(table)) exactly once, and the space character must be
// present because unknown characters are encoded as space.
func NewVocabulary(char2idx map[string]int) (*Vocabulary, error) {
	if len(char2idx) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrInvalidVocabulary)
	}

	v := &Vocabulary{
		ids:   make(map[rune]int, len(char2idx)),
		chars: make([]rune, len(char2idx)),
	}
	seen := make([]bool, len(char2idx))

	for s, id := range char2idx {
		r, size := utf8.DecodeRuneInString(s)
		if size != len(s) || (r == utf8.RuneError && size <= 1) {
			return nil, fmt.Errorf("%w: key %q is not a single character", ErrInvalidVocabulary, s)
		}
		if id < 0 || id >= len(char2idx) {
			return nil, fmt.Errorf("%w: id %d for %q out of range [0, %d)", ErrInvalidVocabulary, id, s, len(char2idx))
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: id %d assigned twice", ErrInvalidVocabulary, id)
		}
		seen[id] = true
		v.ids[r] = id
		v.chars[id] = r
	}

	space, ok := v.ids[' ']
	if !ok {
		return nil, fmt.Errorf("%w: space character missing", ErrInvalidVocabulary)
	}
	v.spaceID = space

	return v, nil
}

// Size returns the number of tokens.
func (v *Vocabulary) Size() int { return len(v.chars) }

// Encode returns the token id for r, or the id of the space character when r
// is not in the vocabulary.
func (v *Vocabulary) Encode(r rune) int {
	if id, ok := v.ids[r]; ok {
		return id
	}
	return v.spaceID
}

// Decode returns the character for a token id in [0, Size()).
func (v *Vocabulary) Decode(id int) rune {
	return v.chars[id]
}

// Contains reports whether r has its own token.
func (v *Vocabulary) Contains(r rune) bool {
	_, ok := v.ids[r]
	return ok
}

// Chars returns the characters ordered by token id.
func (v *Vocabulary) Chars() []rune {
	out := make([]rune, len(v.chars))
	copy(out, v.chars)
	return out
}

// Table returns the character-to-id table the vocabulary was built from.
func (v *Vocabulary) Table() map[string]int {
	out := make(map[string]int, len(v.chars))
	for id, r := range v.chars {
		out[string(r)] = id
	}
	return out
}

// Uppercase returns the upper-case letters of the vocabulary ordered by id.
// Lines of verse conventionally start with one of these.
func (v *Vocabulary) Uppercase() []rune {
	var out []rune
	for _, r := range v.chars {
		if unicode.IsLetter(r) && unicode.IsUpper(r) {
			out = append(out, r)
		}
	}
	return out
}
