// Package ngram is a character n-gram predictor. It stands in for the
// recurrent network wherever one is not available: it has the same
// contract (feed one token, get the distribution of the next) and keeps
// the last few tokens as its state.
package ngram

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Paranoid-AF/runo/model"
	"github.com/Paranoid-AF/runo/verse"
)

// ModelFile is the name of the serialized counts inside a model directory.
const ModelFile = "model.msgpack"

// DefaultOrder is the n of the n-gram: the prediction looks at up to
// DefaultOrder-1 previous characters.
const DefaultOrder = 6

// smoothing is the pseudo-count added to every token so no character is
// impossible.
const smoothing = 1e-3

// Model is a character n-gram model. Counts are shared between clones; the
// history is per instance. A Model is not safe for concurrent use.
type Model struct {
	order  int
	size   int
	counts map[string][]uint32

	history []int
}

type fileFormat struct {
	Order  int                 `msgpack:"order"`
	Size   int                 `msgpack:"size"`
	Counts map[string][]uint32 `msgpack:"counts"`
}

// Train counts the character n-grams of text. Characters outside vocab are
// counted as space.
func Train(text string, vocab *verse.Vocabulary, order int) *Model {
	if order < 1 {
		order = DefaultOrder
	}
	m := &Model{
		order:  order,
		size:   vocab.Size(),
		counts: make(map[string][]uint32),
	}

	ids := make([]int, 0, len(text))
	for _, r := range text {
		ids = append(ids, vocab.Encode(r))
	}

	for i, next := range ids {
		for k := 0; k < order && k <= i; k++ {
			key := contextKey(ids[i-k : i])
			row, ok := m.counts[key]
			if !ok {
				row = make([]uint32, m.size)
				m.counts[key] = row
			}
			row[next]++
		}
	}
	return m
}

// Order returns n.
func (m *Model) Order() int { return m.order }

// Clone returns a model sharing m's counts with an empty history.
func (m *Model) Clone() *Model {
	return &Model{order: m.order, size: m.size, counts: m.counts}
}

// Predict appends token to the history and returns the distribution of
// the next token. Longer matching contexts are weighted more heavily.
func (m *Model) Predict(ctx context.Context, token int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token < 0 || token >= m.size {
		return nil, fmt.Errorf("ngram: token %d out of range [0, %d)", token, m.size)
	}

	m.history = append(m.history, token)
	if keep := m.order - 1; len(m.history) > keep {
		m.history = m.history[len(m.history)-keep:]
	}

	q := make([]float64, m.size)
	for i := range q {
		q[i] = smoothing
	}

	weight := 1.0
	for k := 0; k <= len(m.history); k++ {
		row, ok := m.counts[contextKey(m.history[len(m.history)-k:])]
		if !ok {
			break
		}
		var total float64
		for _, c := range row {
			total += float64(c)
		}
		for i, c := range row {
			q[i] += weight * float64(c) / total
		}
		weight *= 4
	}
	return q, nil
}

// Reset clears the history.
func (m *Model) Reset(context.Context) error {
	m.history = m.history[:0]
	return nil
}

// Close is a no-op; counts are plain memory.
func (m *Model) Close() error { return nil }

// Save writes the counts to path.
func (m *Model) Save(path string) error {
	data, err := msgpack.Marshal(&fileFormat{Order: m.order, Size: m.size, Counts: m.counts})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads counts written by Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f fileFormat
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Order < 1 || f.Size < 1 {
		return nil, fmt.Errorf("parse %s: invalid header (order %d, size %d)", path, f.Order, f.Size)
	}
	for key, row := range f.Counts {
		if len(row) != f.Size {
			return nil, fmt.Errorf("parse %s: context %q has %d counts, want %d", path, key, len(row), f.Size)
		}
	}
	return &Model{order: f.Order, size: f.Size, counts: f.Counts}, nil
}

// SaveDir writes a complete model directory: the character table and the
// counts.
func SaveDir(dir string, m *Model, vocab *verse.Vocabulary) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := model.WriteCharIndex(dir, vocab); err != nil {
		return err
	}
	return m.Save(filepath.Join(dir, ModelFile))
}

// LoadDir reads a model directory written by SaveDir.
func LoadDir(dir string) (*Model, *verse.Vocabulary, error) {
	vocab, err := model.LoadVocabulary(dir)
	if err != nil {
		return nil, nil, err
	}
	m, err := Load(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, nil, err
	}
	if m.size != vocab.Size() {
		return nil, nil, fmt.Errorf("%s: model has %d tokens, vocabulary has %d", dir, m.size, vocab.Size())
	}
	return m, vocab, nil
}

// contextKey encodes a token sequence as a map key.
func contextKey(ids []int) string {
	buf := make([]byte, 0, 2*len(ids))
	for _, id := range ids {
		buf = binary.AppendUvarint(buf, uint64(id))
	}
	return string(buf)
}
