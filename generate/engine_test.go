package generate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runo "github.com/Paranoid-AF/runo"
	"github.com/Paranoid-AF/runo/model"
	"github.com/Paranoid-AF/runo/verse"
)

var errModel = errors.New("model unavailable")

var testTable = map[string]int{
	"\n": 0, " ": 1, "V": 2, "a": 3, "k": 4,
	"S": 5, "u": 6, "o": 7, "m": 8, "i": 9,
}

// lineModel predicts "Vak\n" after a line break and "i\n" after "Suom".
type lineModel struct {
	vocab  *verse.Vocabulary
	calls  int
	closed bool
	err    error
}

var transitions = map[rune]rune{
	'\n': 'V', 'V': 'a', 'a': 'k', 'k': '\n',
	'S': 'u', 'u': 'o', 'o': 'm', 'm': 'i', 'i': '\n',
}

func (m *lineModel) Predict(_ context.Context, token int) ([]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	q := make([]float64, m.vocab.Size())
	next, ok := transitions[m.vocab.Decode(token)]
	if !ok {
		next = ' '
	}
	q[m.vocab.Encode(next)] = 1
	return q, nil
}

func (m *lineModel) Reset(context.Context) error { return nil }

func (m *lineModel) Close() error {
	m.closed = true
	return nil
}

func newLineModel(t *testing.T) *lineModel {
	t.Helper()
	vocab, err := verse.NewVocabulary(testTable)
	require.NoError(t, err)
	return &lineModel{vocab: vocab}
}

func testEngine(t *testing.T, m *lineModel, modify func(cfg *runo.Config)) *Engine {
	t.Helper()
	cfg := runo.DefaultConfig()
	if modify != nil {
		modify(cfg)
	}
	e := NewEngineWithModel(cfg, m.vocab, m)
	t.Cleanup(e.Close)
	return e
}

// alwaysInject makes every line start with a keyword.
func alwaysInject(cfg *runo.Config) {
	cfg.Sampling.KeywordWeight = 1
	cfg.Sampling.KeywordDecay = 1
}

func TestGenerateDefaults(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	resp := e.Generate(context.Background(), &runo.Request{Prefix: "Vaka"})
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Verses, verse.DefaultVerses)
	for _, v := range resp.Verses {
		assert.Equal(t, "Vak\n", v)
	}
	require.NotNil(t, resp.Stats)
	assert.Equal(t, verse.DefaultVerses+1, resp.Stats.Lines)
	assert.Zero(t, resp.Stats.Keywords)
}

func TestGenerateLines(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	resp := e.Generate(context.Background(), &runo.Request{Prefix: "Vaka", Lines: 2})
	require.Nil(t, resp.Error)
	assert.Equal(t, []string{"Vak\n", "Vak\n"}, resp.Verses)
}

func TestGenerateKeywordText(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, alwaysInject)

	resp := e.Generate(context.Background(), &runo.Request{Prefix: "Vaka", KeywordText: "suomi!", Lines: 3})
	require.Nil(t, resp.Error)
	assert.Equal(t, []string{"Suomi\n", "Suomi\n", "Suomi\n"}, resp.Verses)
	assert.Equal(t, 3, resp.Stats.Keywords)
}

func TestGenerateExplicitKeywordsWin(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, alwaysInject)

	resp := e.Generate(context.Background(), &runo.Request{
		Prefix:      "Vaka",
		Keywords:    []string{"Vaka"},
		KeywordText: "suomi",
		Lines:       1,
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, []string{"Vakak\n"}, resp.Verses)
}

func TestGenerateInvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  runo.Request
	}{
		{"negative temperature", runo.Request{Temperature: -1}},
		{"negative lines", runo.Request{Lines: -3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newLineModel(t)
			e := testEngine(t, m, nil)

			resp := e.Generate(context.Background(), &tt.req)
			require.NotNil(t, resp.Error)
			assert.Equal(t, runo.CodeInvalidRequest, resp.Error.Code)
			assert.NotNil(t, resp.Verses)
			assert.Empty(t, resp.Verses)
			assert.Zero(t, m.calls)
		})
	}
}

func TestGenerateModelError(t *testing.T) {
	m := newLineModel(t)
	m.err = errModel
	e := testEngine(t, m, nil)

	resp := e.Generate(context.Background(), &runo.Request{Prefix: "Vaka"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, runo.CodeModelError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, errModel.Error())
	assert.Equal(t, 1, m.calls, "failures are not retried")
}

func TestGenerateCancelled(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := e.Generate(ctx, &runo.Request{Prefix: "Vaka"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, runo.CodeCancelled, resp.Error.Code)
	assert.Zero(t, m.calls)
}

func TestGenerateNotConfigured(t *testing.T) {
	cfg := runo.DefaultConfig()
	e := newEngine(cfg, "", ConfigLoader(cfg))
	defer e.Close()

	resp := e.Generate(context.Background(), &runo.Request{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, runo.CodeNotConfigured, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "RUNO_MODEL_DIR")
}

func TestGenerateConcurrentRequestsShareModel(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	var wg sync.WaitGroup
	responses := make([]*runo.Response, 4)
	for i := range responses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses[i] = e.Generate(context.Background(), &runo.Request{Prefix: "Vaka", Lines: 2})
		}()
	}
	wg.Wait()

	for _, resp := range responses {
		require.Nil(t, resp.Error)
		assert.Equal(t, []string{"Vak\n", "Vak\n"}, resp.Verses)
	}
	assert.Equal(t, 1, e.models.Len())
}

func TestGenerateCountsMetrics(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, alwaysInject)

	verses := testutil.ToFloat64(verseCreationOps)
	keywords := testutil.ToFloat64(keywordInjectionOps)
	ok := testutil.ToFloat64(requestOps.WithLabelValues("batch", "ok"))

	resp := e.Generate(context.Background(), &runo.Request{Prefix: "Vaka", Keywords: []string{"Suomi"}, Lines: 2})
	require.Nil(t, resp.Error)

	assert.Equal(t, verses+2, testutil.ToFloat64(verseCreationOps))
	assert.Equal(t, keywords+2, testutil.ToFloat64(keywordInjectionOps))
	assert.Equal(t, ok+1, testutil.ToFloat64(requestOps.WithLabelValues("batch", "ok")))
}

func TestStreamEmitsVerses(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	var got []string
	stats, err := e.Stream(context.Background(), &runo.Request{Prefix: "Vaka", Lines: 3}, func(v string) error {
		got = append(got, v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Vak\n", "Vak\n", "Vak\n"}, got)
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.Lines)
}

func TestStreamStopsWhenEmitFails(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	emitted := 0
	_, err := e.Stream(context.Background(), &runo.Request{Prefix: "Vaka", Lines: 5}, func(string) error {
		emitted++
		return errors.New("client gone")
	})

	var rerr *runo.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, runo.CodeCancelled, rerr.Code)
	assert.Equal(t, 1, emitted)

	// The model is free again.
	resp := e.Generate(context.Background(), &runo.Request{Prefix: "Vaka", Lines: 1})
	assert.Nil(t, resp.Error)
}

func TestStreamInvalidRequest(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	_, err := e.Stream(context.Background(), &runo.Request{Lines: -1}, func(string) error { return nil })
	var rerr *runo.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, runo.CodeInvalidRequest, rerr.Code)
}

func TestToError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{verse.ErrInvalidTemperature, runo.CodeInvalidRequest},
		{ErrNotConfigured, runo.CodeNotConfigured},
		{context.Canceled, runo.CodeCancelled},
		{context.DeadlineExceeded, runo.CodeCancelled},
		{verse.ErrClosed, runo.CodeCancelled},
		{errModel, runo.CodeModelError},
		{verse.ErrVectorSize, runo.CodeModelError},
		{&runo.Error{Code: "custom", Message: "x"}, "custom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, toError(tt.err).Code, tt.err.Error())
	}
}

var _ model.Backend = (*lineModel)(nil)

func TestTextPrefixAndCount(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, alwaysInject)

	resp := e.Text(context.Background(), &runo.TextRequest{Prefix: "Va", Count: 5})
	require.Nil(t, resp.Error)
	// Keywords are never injected into raw text.
	assert.Equal(t, "Vak\nVak", resp.Content)
}

func TestTextDefaultCount(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	resp := e.Text(context.Background(), &runo.TextRequest{})
	require.Nil(t, resp.Error)
	assert.Len(t, []rune(resp.Content), runo.DefaultTextLength+1)
}

func TestTextInvalidRequest(t *testing.T) {
	m := newLineModel(t)
	e := testEngine(t, m, nil)

	resp := e.Text(context.Background(), &runo.TextRequest{Count: -1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, runo.CodeInvalidRequest, resp.Error.Code)

	resp = e.Text(context.Background(), &runo.TextRequest{Temperature: -1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, runo.CodeInvalidRequest, resp.Error.Code)
	assert.Zero(t, m.calls)
}

func TestTextModelError(t *testing.T) {
	m := newLineModel(t)
	m.err = errModel
	e := testEngine(t, m, nil)

	resp := e.Text(context.Background(), &runo.TextRequest{Prefix: "Vaka", Count: 3})
	require.NotNil(t, resp.Error)
	assert.Equal(t, runo.CodeModelError, resp.Error.Code)
}
