package generate

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Paranoid-AF/runo/verse"
)

var (
	requestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runo",
			Subsystem: "generate",
			Name:      "request_ops_total",
			Help:      "The total number of verse requests.",
		},
		[]string{"mode", "status"},
	)
	verseCreationOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runo",
			Subsystem: "generate",
			Name:      "verse_creation_ops_total",
			Help:      "The total number of verses returned to clients.",
		},
	)
	keywordInjectionOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runo",
			Subsystem: "generate",
			Name:      "keyword_injection_ops_total",
			Help:      "The total number of keywords injected at line starts.",
		},
	)
	modelCallOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runo",
			Subsystem: "generate",
			Name:      "model_call_ops_total",
			Help:      "The total number of predictor calls.",
		},
		[]string{"call", "status"},
	)
	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "runo",
			Subsystem: "generate",
			Name:      "model_load_duration_seconds",
			Help:      "Time taken to load a model.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"backend"},
	)
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "runo",
			Subsystem: "generate",
			Name:      "generation_duration_seconds",
			Help:      "Time taken to produce a response.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode", "status"},
	)
)

func init() {
	prometheus.MustRegister(requestOps)
	prometheus.MustRegister(verseCreationOps)
	prometheus.MustRegister(keywordInjectionOps)
	prometheus.MustRegister(modelCallOps)
	prometheus.MustRegister(modelLoadDuration)
	prometheus.MustRegister(generationDuration)
}

// countingPredictor records every call made to the wrapped predictor.
type countingPredictor struct {
	verse.Predictor
}

func (p countingPredictor) Predict(ctx context.Context, token int) ([]float64, error) {
	q, err := p.Predictor.Predict(ctx, token)
	modelCallOps.WithLabelValues("predict", callStatus(err)).Inc()
	return q, err
}

func (p countingPredictor) Reset(ctx context.Context) error {
	err := p.Predictor.Reset(ctx)
	modelCallOps.WithLabelValues("reset", callStatus(err)).Inc()
	return err
}

func callStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
