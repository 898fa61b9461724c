package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	runo "github.com/Paranoid-AF/runo"
	"github.com/Paranoid-AF/runo/model"
	"github.com/Paranoid-AF/runo/model/ngram"
	"github.com/Paranoid-AF/runo/model/remote"
	"github.com/Paranoid-AF/runo/verse"
)

// ErrNotConfigured is returned when no model directory is configured.
var ErrNotConfigured = errors.New("model not configured")

// LoadFunc opens the model identified by key.
type LoadFunc func(key string) (*verse.Vocabulary, model.Backend, error)

// Loaded is a model held in memory with the sampler bound to it.
type Loaded struct {
	Vocab   *verse.Vocabulary
	Backend model.Backend
	Sampler *verse.Sampler
}

// ModelCache keeps loaded models for a keep-alive period after their last
// use. Evicted models are closed.
type ModelCache struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *Loaded]
	load  LoadFunc
	opts  []verse.SamplerOption
}

// NewModelCache creates a cache. A keepAlive of zero keeps models forever.
func NewModelCache(keepAlive time.Duration, load LoadFunc, opts ...verse.SamplerOption) *ModelCache {
	if keepAlive <= 0 {
		keepAlive = ttlcache.NoTTL
	}
	c := ttlcache.New[string, *Loaded](
		ttlcache.WithTTL[string, *Loaded](keepAlive),
	)
	c.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Loaded]) {
		slog.Info("unloading model", "model", item.Key(), "reason", evictionReason(reason))
		if err := item.Value().Backend.Close(); err != nil {
			slog.Warn("failed to close model", "model", item.Key(), "error", err)
		}
	})
	go c.Start()
	return &ModelCache{cache: c, load: load, opts: opts}
}

// Get returns the model for key, loading it on a miss.
func (mc *ModelCache) Get(key string) (*Loaded, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if item := mc.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	vocab, backend, err := mc.load(key)
	if err != nil {
		return nil, err
	}
	l := &Loaded{
		Vocab:   vocab,
		Backend: backend,
		Sampler: verse.NewSampler(countingPredictor{backend}, vocab, mc.opts...),
	}
	mc.cache.Set(key, l, ttlcache.DefaultTTL)
	slog.Info("loaded model", "model", key, "vocabulary", vocab.Size())
	return l, nil
}

// Len returns the number of loaded models.
func (mc *ModelCache) Len() int {
	return mc.cache.Len()
}

// Close unloads every model and stops the expiration loop.
func (mc *ModelCache) Close() {
	mc.cache.DeleteAll()
	mc.cache.Stop()
}

func evictionReason(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity reached"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	}
	return "unknown"
}

// ConfigLoader returns a LoadFunc that opens models as described by cfg.
// The key is the model directory.
func ConfigLoader(cfg *runo.Config) LoadFunc {
	return func(dir string) (*verse.Vocabulary, model.Backend, error) {
		if dir == "" {
			return nil, nil, ErrNotConfigured
		}

		start := time.Now()
		backend := cfg.Model.Backend
		defer func() {
			modelLoadDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
		}()

		switch backend {
		case runo.BackendNgram:
			m, vocab, err := ngram.LoadDir(dir)
			if err != nil {
				return nil, nil, fmt.Errorf("load ngram model: %w", err)
			}
			return vocab, m, nil

		case runo.BackendRemote:
			baseURL := runo.ResolveModelBaseURL(cfg)
			if baseURL == "" {
				return nil, nil, fmt.Errorf("%w: remote backend needs model.base_url", ErrNotConfigured)
			}
			vocab, err := model.LoadVocabulary(dir)
			if err != nil {
				return nil, nil, err
			}
			timeout := time.Duration(cfg.Model.TimeoutSeconds) * time.Second
			return vocab, remote.NewClient(baseURL, runo.ResolveModelAPIKey(cfg), timeout), nil
		}
		return nil, nil, fmt.Errorf("unknown model backend %q", backend)
	}
}
