package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paranoid-AF/runo/model/ngram"
)

func newTrainCmd() *cobra.Command {
	var order int

	cmd := &cobra.Command{
		Use:   "train <model-dir> <corpus>...",
		Short: "Build an n-gram model directory from text files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, files := args[0], args[1:]

			parts := make([]string, 0, len(files))
			for _, f := range files {
				data, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				parts = append(parts, ngram.NormalizeCorpus(string(data)))
			}
			text := strings.Join(parts, "\n\n")
			if text == "" {
				return fmt.Errorf("corpus is empty")
			}

			vocab, err := ngram.BuildVocabulary(text)
			if err != nil {
				return err
			}
			m := ngram.Train(text, vocab, order)
			if err := ngram.SaveDir(dir, m, vocab); err != nil {
				return err
			}

			slog.Info("trained", "dir", dir, "characters", len([]rune(text)), "vocabulary", vocab.Size(), "order", m.Order())
			return nil
		},
	}
	cmd.Flags().IntVar(&order, "order", ngram.DefaultOrder, "n-gram order")
	return cmd
}
