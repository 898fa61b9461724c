package main

import (
	"fmt"

	"github.com/spf13/cobra"

	runo "github.com/Paranoid-AF/runo"
	"github.com/Paranoid-AF/runo/generate"
	"github.com/Paranoid-AF/runo/model/ngram"
	"github.com/Paranoid-AF/runo/verse"
)

type sampleOptions struct {
	temperature float64
	seed        uint64
}

func (o *sampleOptions) register(cmd *cobra.Command, defaultTemperature float64) {
	cmd.Flags().Float64VarP(&o.temperature, "temperature", "t", defaultTemperature,
		"sampling temperature; smaller values mean more conservative predictions")
	cmd.Flags().Uint64Var(&o.seed, "seed", 0, "random seed (0 for a random one)")
}

// openEngine binds an engine to the n-gram model directory dir.
func openEngine(dir string, opts *sampleOptions) (*generate.Engine, error) {
	m, vocab, err := ngram.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	cfg := runo.DefaultConfig()
	cfg.Sampling.Seed = opts.seed
	return generate.NewEngineWithModel(cfg, vocab, m), nil
}

func newTextCmd() *cobra.Command {
	var (
		opts    sampleOptions
		n       int
		preseed string
	)

	cmd := &cobra.Command{
		Use:   "text <model-dir>",
		Short: "Print n characters sampled after a seed text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n <= 0 {
				return fmt.Errorf("--count must be positive, got %d", n)
			}
			engine, err := openEngine(args[0], &opts)
			if err != nil {
				return err
			}
			defer engine.Close()

			resp := engine.Text(cmd.Context(), &runo.TextRequest{
				Prefix:      preseed,
				Temperature: opts.temperature,
				Count:       n,
			})
			if resp.Error != nil {
				return resp.Error
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
			return nil
		},
	}
	opts.register(cmd, 1.0)
	cmd.Flags().IntVarP(&n, "count", "n", 500, "number of characters to sample")
	cmd.Flags().StringVar(&preseed, "preseed", "", "use this text as the seed (default a random capital)")
	return cmd
}

func newVersesCmd() *cobra.Command {
	var (
		opts     sampleOptions
		keywords string
		prefix   string
		lines    int
	)

	cmd := &cobra.Command{
		Use:   "verses <model-dir>",
		Short: "Print verses, optionally woven around keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(args[0], &opts)
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := cmd.Context()
			resp := engine.Generate(ctx, &runo.Request{
				KeywordText: keywords,
				Prefix:      prefix,
				Temperature: opts.temperature,
				Lines:       lines,
			})
			if resp.Error != nil {
				return resp.Error
			}
			for _, v := range resp.Verses {
				fmt.Fprint(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
	opts.register(cmd, runo.DefaultConfig().Sampling.Temperature)
	cmd.Flags().StringVarP(&keywords, "keywords", "k", "", "words to start lines with")
	cmd.Flags().StringVar(&prefix, "prefix", "", "opening text of the poem")
	cmd.Flags().IntVarP(&lines, "lines", "l", verse.DefaultVerses, "number of verses")
	return cmd
}
