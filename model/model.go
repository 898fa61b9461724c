// Package model loads the artifacts a verse.Sampler needs: the character
// table of a trained model and a predictor backend for it.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Paranoid-AF/runo/verse"
)

// CharIndexFile is the name of the character table inside a model directory.
const CharIndexFile = "char2idx.json"

// Backend is a verse.Predictor that holds resources.
type Backend interface {
	verse.Predictor
	Close() error
}

// LoadCharIndex reads a character-to-id table stored as a JSON object.
func LoadCharIndex(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var char2idx map[string]int
	if err := json.Unmarshal(data, &char2idx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return char2idx, nil
}

// LoadVocabulary reads and validates the character table in dir.
func LoadVocabulary(dir string) (*verse.Vocabulary, error) {
	path := filepath.Join(dir, CharIndexFile)
	char2idx, err := LoadCharIndex(path)
	if err != nil {
		return nil, err
	}
	vocab, err := verse.NewVocabulary(char2idx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vocab, nil
}

// WriteCharIndex stores the character table of vocab in dir.
func WriteCharIndex(dir string, vocab *verse.Vocabulary) error {
	data, err := json.Marshal(vocab.Table())
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CharIndexFile), data, 0644)
}
