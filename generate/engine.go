// Package generate turns verse requests into verses: it loads the configured
// model, applies request defaults and runs the sampling engine.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	runo "github.com/Paranoid-AF/runo"
	"github.com/Paranoid-AF/runo/model"
	"github.com/Paranoid-AF/runo/verse"
)

// Engine serves verse requests against one configured model.
type Engine struct {
	config *runo.Config
	models *ModelCache
	key    string
}

// NewEngine creates an engine from the user's configuration.
func NewEngine() *Engine {
	cfg, err := runo.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = runo.DefaultConfig()
	}

	dir := runo.ResolveModelDir(cfg)
	if dir == "" {
		slog.Warn("model directory not configured")
	}
	return newEngine(cfg, dir, ConfigLoader(cfg))
}

// NewEngineWithModel creates an engine bound to an already opened model.
func NewEngineWithModel(cfg *runo.Config, vocab *verse.Vocabulary, backend model.Backend) *Engine {
	if cfg == nil {
		cfg = runo.DefaultConfig()
	}
	return newEngine(cfg, "memory", func(string) (*verse.Vocabulary, model.Backend, error) {
		return vocab, backend, nil
	})
}

func newEngine(cfg *runo.Config, key string, load LoadFunc) *Engine {
	opts := []verse.SamplerOption{
		verse.WithProbabilityFloor(cfg.Sampling.ProbabilityFloor),
		verse.WithDegenerateMass(cfg.Sampling.DegenerateMass),
	}
	if cfg.Sampling.Seed != 0 {
		opts = append(opts, verse.WithSource(verse.NewSource(cfg.Sampling.Seed)))
	}
	keepAlive := time.Duration(cfg.Model.KeepAliveMinutes) * time.Minute
	return &Engine{
		config: cfg,
		models: NewModelCache(keepAlive, load, opts...),
		key:    key,
	}
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *runo.Config { return e.config }

// Close unloads the model.
func (e *Engine) Close() {
	e.models.Close()
}

// plan is a validated request.
type plan struct {
	temperature float64
	lines       int
	seeds       *verse.KeywordSeeds
}

func (e *Engine) plan(req *runo.Request) (*plan, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = e.config.Sampling.Temperature
	}
	if !(temperature > 0) || math.IsInf(temperature, 0) {
		return nil, &runo.Error{
			Code:    runo.CodeInvalidRequest,
			Message: fmt.Sprintf("temperature must be positive, got %v", temperature),
		}
	}

	lines := req.Lines
	if lines == 0 {
		lines = e.config.Sampling.Lines
	}
	if lines == 0 {
		lines = verse.DefaultVerses
	}
	if lines < 0 {
		return nil, &runo.Error{
			Code:    runo.CodeInvalidRequest,
			Message: fmt.Sprintf("lines must not be negative, got %d", lines),
		}
	}

	keywords := req.Keywords
	if len(keywords) == 0 && req.KeywordText != "" {
		keywords = ParseKeywords(req.KeywordText)
	}

	s := e.config.Sampling
	var seedOpts []verse.SeedOption
	if s.KeywordWeight > 0 {
		seedOpts = append(seedOpts, verse.WithInitialWeight(s.KeywordWeight))
	}
	if s.KeywordDecay > 0 {
		seedOpts = append(seedOpts, verse.WithDecay(s.KeywordDecay))
	}
	if s.KeywordFloor > 0 {
		seedOpts = append(seedOpts, verse.WithWeightFloor(s.KeywordFloor))
	}

	return &plan{
		temperature: temperature,
		lines:       lines,
		seeds:       verse.NewKeywordSeeds(req.Prefix, keywords, seedOpts...),
	}, nil
}

// start validates req and opens a stream on the model.
func (e *Engine) start(ctx context.Context, req *runo.Request) (*verse.Stream, *plan, error) {
	p, err := e.plan(req)
	if err != nil {
		return nil, nil, err
	}

	loaded, err := e.models.Get(e.key)
	if err != nil {
		return nil, nil, toError(err)
	}

	st, err := verse.Start(ctx, loaded.Sampler, p.temperature, p.seeds)
	if err != nil {
		return nil, nil, toError(err)
	}
	return st, p, nil
}

// Generate produces the verses for req.
func (e *Engine) Generate(ctx context.Context, req *runo.Request) *runo.Response {
	start := time.Now()
	resp := e.generate(ctx, req)
	observe("batch", resp.Error, start)
	return resp
}

func (e *Engine) generate(ctx context.Context, req *runo.Request) *runo.Response {
	st, p, err := e.start(ctx, req)
	if err != nil {
		return &runo.Response{Verses: []string{}, Error: toError(err)}
	}
	defer st.Close()

	verses, err := verse.SelectVerses(ctx, st, p.lines)
	stats := recordStats(st, len(verses))
	if err != nil {
		slog.Error("generation error", "error", err)
		return &runo.Response{Verses: verses, Stats: stats, Error: toError(err)}
	}

	slog.Debug("generated", "verses", len(verses), "runes", stats.Runes, "keywords", stats.Keywords)
	return &runo.Response{Verses: verses, Stats: stats}
}

// Stream produces the verses for req one at a time. Generation stops when
// emit returns an error. Failures are returned as *runo.Error.
func (e *Engine) Stream(ctx context.Context, req *runo.Request, emit func(verse string) error) (*runo.Stats, error) {
	start := time.Now()
	stats, err := e.stream(ctx, req, emit)

	var rerr *runo.Error
	errors.As(err, &rerr)
	observe("stream", rerr, start)
	return stats, err
}

func (e *Engine) stream(ctx context.Context, req *runo.Request, emit func(string) error) (*runo.Stats, error) {
	st, p, err := e.start(ctx, req)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	n := 0
	for line, err := range verse.Verses(ctx, st, p.lines) {
		if err != nil {
			slog.Error("generation error", "error", err)
			return recordStats(st, n), toError(err)
		}
		if err := emit(line); err != nil {
			return recordStats(st, n), &runo.Error{Code: runo.CodeCancelled, Message: "emit: " + err.Error()}
		}
		n++
	}
	return recordStats(st, n), nil
}

// Text samples req.Count characters after the prefix and returns them with
// the prefix. Keywords are not injected.
func (e *Engine) Text(ctx context.Context, req *runo.TextRequest) *runo.TextResponse {
	start := time.Now()
	resp := e.text(ctx, req)
	observe("text", resp.Error, start)
	return resp
}

func (e *Engine) text(ctx context.Context, req *runo.TextRequest) *runo.TextResponse {
	count := req.Count
	if count == 0 {
		count = runo.DefaultTextLength
	}
	if count < 0 {
		return &runo.TextResponse{Error: &runo.Error{
			Code:    runo.CodeInvalidRequest,
			Message: fmt.Sprintf("count must not be negative, got %d", count),
		}}
	}

	st, _, err := e.start(ctx, &runo.Request{Prefix: req.Prefix, Temperature: req.Temperature})
	if err != nil {
		return &runo.TextResponse{Error: toError(err)}
	}
	defer st.Close()

	// An empty prefix is replaced by one start character.
	total := count + max(utf8.RuneCountInString(req.Prefix), 1)
	var sb strings.Builder
	for range total {
		r, err := st.NextRune(ctx)
		if err != nil {
			slog.Error("generation error", "error", err)
			return &runo.TextResponse{Content: sb.String(), Error: toError(err)}
		}
		sb.WriteRune(r)
	}
	recordStats(st, 0)
	return &runo.TextResponse{Content: sb.String()}
}

func recordStats(st *verse.Stream, verses int) *runo.Stats {
	s := st.Stats()
	verseCreationOps.Add(float64(verses))
	keywordInjectionOps.Add(float64(s.Keywords))
	return &runo.Stats{Runes: s.Runes, Lines: s.Lines, Keywords: s.Keywords}
}

func observe(mode string, rerr *runo.Error, start time.Time) {
	status := "ok"
	if rerr != nil {
		status = rerr.Code
	}
	requestOps.WithLabelValues(mode, status).Inc()
	generationDuration.WithLabelValues(mode, status).Observe(time.Since(start).Seconds())
}

// toError maps engine failures to wire errors.
func toError(err error) *runo.Error {
	var rerr *runo.Error
	if errors.As(err, &rerr) {
		return rerr
	}

	code := runo.CodeModelError
	switch {
	case errors.Is(err, verse.ErrInvalidTemperature):
		code = runo.CodeInvalidRequest
	case err == ErrNotConfigured:
		return &runo.Error{
			Code:    runo.CodeNotConfigured,
			Message: "model not configured; set RUNO_MODEL_DIR or model.dir in the config file",
		}
	case errors.Is(err, ErrNotConfigured):
		code = runo.CodeNotConfigured
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, verse.ErrClosed):
		code = runo.CodeCancelled
	}
	return &runo.Error{Code: code, Message: err.Error()}
}
