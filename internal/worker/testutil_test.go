package worker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tgiworker/internal/concurrency"
	"tgiworker/internal/tgi"
)

// fakeClient is a lightweight in-memory generation client used for tests.
type fakeClient struct {
	mu sync.Mutex

	genText   string
	genErr    error
	tokens    []tgi.Token
	streamErr error // returned by GenerateStream itself
	recvErr   error // returned by Recv after all tokens
	// gate, when set, blocks every call until closed.
	gate chan struct{}

	genCalls    int
	streamCalls int
	lastPrompt  string
	lastParams  map[string]any
	streams     []*fakeStream
}

func (f *fakeClient) record(prompt string, params map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt = prompt
	f.lastParams = params
}

func (f *fakeClient) wait(ctx context.Context) error {
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeClient) Generate(ctx context.Context, prompt string, params map[string]any) (tgi.CompletionResult, error) {
	f.mu.Lock()
	f.genCalls++
	f.mu.Unlock()
	f.record(prompt, params)
	if err := f.wait(ctx); err != nil {
		return tgi.CompletionResult{}, err
	}
	if f.genErr != nil {
		return tgi.CompletionResult{}, f.genErr
	}
	return tgi.CompletionResult{GeneratedText: f.genText}, nil
}

func (f *fakeClient) GenerateStream(ctx context.Context, prompt string, params map[string]any) (tgi.TokenStream, error) {
	f.mu.Lock()
	f.streamCalls++
	f.mu.Unlock()
	f.record(prompt, params)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	s := &fakeStream{tokens: append([]tgi.Token(nil), f.tokens...), endErr: f.recvErr}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeClient) Capabilities() tgi.Capabilities { return tgi.DefaultCapabilities() }

func (f *fakeClient) calls() (gen, stream int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.genCalls, f.streamCalls
}

type fakeStream struct {
	tokens []tgi.Token
	endErr error
	pos    int
	reads  int
	closed atomic.Int32
}

func (s *fakeStream) Recv() (tgi.StreamResponse, error) {
	if s.closed.Load() > 0 {
		return tgi.StreamResponse{}, io.ErrClosedPipe
	}
	s.reads++
	if s.pos >= len(s.tokens) {
		if s.endErr != nil {
			return tgi.StreamResponse{}, s.endErr
		}
		return tgi.StreamResponse{}, io.EOF
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tgi.StreamResponse{Token: tok}, nil
}

func (s *fakeStream) Close() error {
	s.closed.Add(1)
	return nil
}

func toks(pairs ...any) []tgi.Token {
	var out []tgi.Token
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, tgi.Token{ID: i / 2, Text: pairs[i].(string), Special: pairs[i+1].(bool)})
	}
	return out
}

// newTestController builds a controller with its own counter so tests do not
// share state through the package-level gauge hook.
func newTestController(t *testing.T, client tgi.Client, defaults map[string]any) (*Controller, *concurrency.Counter) {
	t.Helper()
	counter := concurrency.New()
	c, err := NewController(ControllerConfig{
		Client:        client,
		Counter:       counter,
		DefaultParams: defaults,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, counter
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
