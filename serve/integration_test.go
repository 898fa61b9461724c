package main

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	runo "github.com/Paranoid-AF/runo"
	"github.com/Paranoid-AF/runo/generate"
	"github.com/Paranoid-AF/runo/model/ngram"
)

func TestIntegrationRoundTrip(t *testing.T) {
	stub := &stubGenerator{
		resp: &runo.Response{
			Verses: []string{"Vaka vanha Väinämöinen\n"},
			Stats:  &runo.Stats{Runes: 40, Lines: 2},
		},
	}
	srv := newTestServer(t, stub)

	resp := sendRequest(t, srv.sockPath, &runo.Request{
		RequestID: 7,
		Keywords:  []string{"Väinö"},
		SessionID: "test-session",
	})

	if resp.RequestID != 7 {
		t.Errorf("expected request_id 7, got %d", resp.RequestID)
	}
	if len(resp.Verses) != 1 {
		t.Fatalf("expected 1 verse, got %d", len(resp.Verses))
	}
	if resp.Verses[0] != "Vaka vanha Väinämöinen\n" {
		t.Errorf("unexpected verse %q", resp.Verses[0])
	}
	if resp.Stats == nil || resp.Stats.Lines != 2 {
		t.Errorf("expected stats to be forwarded, got %+v", resp.Stats)
	}
}

func TestIntegrationModelError(t *testing.T) {
	stub := &stubGenerator{
		resp: &runo.Response{
			Verses: []string{},
			Error: &runo.Error{
				Code:    runo.CodeModelError,
				Message: "predict: connection refused",
			},
		},
	}
	srv := newTestServer(t, stub)

	raw := string(sendLine(t, srv.sockPath, &runo.Request{RequestID: 5}))
	if !strings.Contains(raw, `"verses":[]`) {
		t.Errorf("expected verses:[] even with error, got %s", raw)
	}
	if !strings.Contains(raw, `"model_error"`) {
		t.Errorf("expected model_error error, got %s", raw)
	}
}

func TestIntegrationMalformedRequest(t *testing.T) {
	stub := &stubGenerator{
		resp: &runo.Response{Verses: []string{}},
	}
	srv := newTestServer(t, stub)

	// Send garbage
	conn, err := net.Dial("unix", srv.sockPath)
	if err != nil {
		t.Fatal(err)
	}
	conn.Write([]byte("not json\n"))
	conn.Close()

	// Server should survive; send a valid request after
	resp := sendRequest(t, srv.sockPath, &runo.Request{RequestID: 99})
	if resp.RequestID != 99 {
		t.Errorf("server should survive malformed request, expected id 99, got %d", resp.RequestID)
	}
}

func TestIntegrationConcurrent(t *testing.T) {
	stub := &stubGenerator{
		resp: &runo.Response{Verses: []string{}},
	}
	srv := newTestServer(t, stub)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			resp := sendRequest(t, srv.sockPath, &runo.Request{RequestID: id})
			if resp.RequestID != id {
				errs <- fmt.Sprintf("goroutine %d: expected id %d, got %d", id, id, resp.RequestID)
			}
		}(i + 1)
	}

	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}

// TestIntegrationEngine runs a real engine over an n-gram model.
func TestIntegrationEngine(t *testing.T) {
	text := ngram.NormalizeCorpus(`Vaka vanha Väinämöinen
laulaja iän-ikuinen
itse tuon sanoiksi virkki,
vaka vanha Väinämöinen
laulaja iän-ikuinen`)
	vocab, err := ngram.BuildVocabulary(text)
	if err != nil {
		t.Fatal(err)
	}
	engine := generate.NewEngineWithModel(runo.DefaultConfig(), vocab, ngram.Train(text, vocab, 4))
	srv := newTestServer(t, engine)

	resp := sendRequest(t, srv.sockPath, &runo.Request{
		RequestID:   11,
		Prefix:      "Vaka",
		Temperature: 0.3,
		Lines:       3,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if len(resp.Verses) != 3 {
		t.Fatalf("expected 3 verses, got %d: %q", len(resp.Verses), resp.Verses)
	}
	for _, v := range resp.Verses {
		if !strings.HasSuffix(v, "\n") || strings.Count(v, "\n") != 1 {
			t.Errorf("verse %q is not a single line", v)
		}
	}

	data, _ := json.Marshal(resp)
	if !strings.Contains(string(data), `"request_id":11`) {
		t.Errorf("expected request_id 11, got %s", data)
	}
}

var _ Generator = (*generate.Engine)(nil)
