package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"tgiworker/internal/concurrency"
	"tgiworker/internal/httpapi"
	"tgiworker/internal/tgi"
	"tgiworker/internal/worker"
)

// tgiRequest is what the fake backend received.
type tgiRequest struct {
	Path       string
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
	Stream     bool           `json:"stream"`
}

// fakeTGI is an in-process stand-in for a text-generation-inference server.
// Prompts select behavior: "fail" emits one token then an error event,
// "hang" emits one token then waits for the caller to go away.
type fakeTGI struct {
	mu       sync.Mutex
	requests []tgiRequest
	release  chan struct{}
}

func (f *fakeTGI) last() tgiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return tgiRequest{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeTGI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		return
	}
	var req tgiRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	_ = dec.Decode(&req)
	req.Path = r.URL.Path
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	switch r.URL.Path {
	case "/generate":
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `[{"generated_text":"Hello!"}]`)
	case "/generate_stream":
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		event := func(id int, text string, special bool) {
			_, _ = fmt.Fprintf(w, "data:{\"token\":{\"id\":%d,\"text\":%q,\"logprob\":-0.1,\"special\":%t}}\n\n", id, text, special)
			if flusher != nil {
				flusher.Flush()
			}
		}
		switch req.Inputs {
		case "fail":
			event(1, "partial", false)
			_, _ = fmt.Fprint(w, "data:{\"error\":\"Request failed during generation\",\"error_type\":\"generation\"}\n\n")
		case "hang":
			event(1, "first", false)
			select {
			case <-r.Context().Done():
			case <-f.release:
			}
		default:
			event(1, "Hel", false)
			event(2, "</s>", true)
			event(3, "lo", false)
		}
	default:
		http.NotFound(w, r)
	}
}

// stack is the worker wired end to end against a fake backend.
type stack struct {
	backend *fakeTGI
	counter *concurrency.Counter
	url     string
}

func newStack(t *testing.T, defaults map[string]any) *stack {
	t.Helper()
	backend := &fakeTGI{release: make(chan struct{})}
	tgiSrv := httptest.NewServer(backend)
	t.Cleanup(tgiSrv.Close)
	t.Cleanup(func() { close(backend.release) })

	counter := concurrency.New()
	ctrl, err := worker.NewController(worker.ControllerConfig{
		Client:        tgi.NewHTTPClient(tgi.ClientConfig{BaseURL: tgiSrv.URL, Logger: zerolog.Nop()}),
		Counter:       counter,
		DefaultParams: defaults,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	api := httptest.NewServer(httpapi.NewMux(ctrl))
	t.Cleanup(api.Close)
	return &stack{backend: backend, counter: counter, url: api.URL}
}
