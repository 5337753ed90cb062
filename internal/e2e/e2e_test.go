package e2e

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"tgiworker/pkg/types"
)

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func readLines(t *testing.T, resp *http.Response) []string {
	t.Helper()
	defer resp.Body.Close()
	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return lines
}

func idle(t *testing.T, s *stack) types.IdleResponse {
	t.Helper()
	resp, err := http.Get(s.url + "/idle")
	if err != nil {
		t.Fatalf("get /idle: %v", err)
	}
	defer resp.Body.Close()
	var out types.IdleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode /idle: %v", err)
	}
	return out
}

func TestE2E_RunSyncGenerate(t *testing.T) {
	s := newStack(t, map[string]any{"temperature": 0.7, "max_new_tokens": 16})
	resp := post(t, s.url+"/runsync", `{"id":"j1","input":{"prompt":"hi","generate_params":{"max_new_tokens":5,"best_of":2,"bogus":1}}}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var rr types.RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.ID != "j1" || rr.Status != types.StatusCompleted || len(rr.Output) != 1 || rr.Output[0].Text != "Hello!" {
		t.Fatalf("unexpected response: %+v", rr)
	}

	got := s.backend.last()
	if got.Path != "/generate" || got.Inputs != "hi" || got.Stream {
		t.Fatalf("backend saw %+v", got)
	}
	want := map[string]any{"temperature": json.Number("0.7"), "max_new_tokens": json.Number("5"), "best_of": json.Number("2")}
	if len(got.Parameters) != len(want) {
		t.Fatalf("parameters=%v want %v", got.Parameters, want)
	}
	for k, v := range want {
		if got.Parameters[k] != v {
			t.Fatalf("parameters[%s]=%v want %v", k, got.Parameters[k], v)
		}
	}
}

func TestE2E_LargeSeedPreserved(t *testing.T) {
	s := newStack(t, map[string]any{"seed": json.Number("9007199254740995")})
	resp := post(t, s.url+"/runsync", `{"input":{"prompt":"hi","generate_params":{"seed":9007199254740993}}}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if got := s.backend.last().Parameters["seed"]; got != json.Number("9007199254740993") {
		t.Fatalf("backend seed=%v", got)
	}
}

func TestE2E_StreamSuppressesSpecialTokens(t *testing.T) {
	s := newStack(t, nil)
	resp := post(t, s.url+"/stream", `{"input":{"prompt":"hi","stream":true,"generate_params":{"best_of":2,"top_k":10}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var text strings.Builder
	for _, line := range readLines(t, resp) {
		var r types.Result
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		text.WriteString(r.Text)
	}
	if text.String() != "Hello" {
		t.Fatalf("streamed %q", text.String())
	}
	got := s.backend.last()
	if got.Path != "/generate_stream" || !got.Stream {
		t.Fatalf("backend saw %+v", got)
	}
	if _, ok := got.Parameters["best_of"]; ok || got.Parameters["top_k"] != json.Number("10") {
		t.Fatalf("stream parameters not filtered: %v", got.Parameters)
	}
	if n := s.counter.Snapshot(); n != 0 {
		t.Fatalf("inflight=%d after stream", n)
	}
}

func TestE2E_StreamBackendErrorEndsStream(t *testing.T) {
	s := newStack(t, nil)
	lines := readLines(t, post(t, s.url+"/stream", `{"input":{"prompt":"fail","stream":true}}`))
	if len(lines) != 2 {
		t.Fatalf("lines=%q", lines)
	}
	var se types.StreamError
	if err := json.Unmarshal([]byte(lines[1]), &se); err != nil || !strings.Contains(se.Error, "Request failed during generation") {
		t.Fatalf("last line %q err=%v", lines[1], err)
	}
	if n := s.counter.Snapshot(); n != 0 {
		t.Fatalf("inflight=%d after failure", n)
	}
}

func TestE2E_RunSyncValidationError(t *testing.T) {
	s := newStack(t, nil)
	resp := post(t, s.url+"/runsync", `{"input":{"stream":true}}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if got := s.backend.last(); got.Path != "" {
		t.Fatalf("backend must not be called, saw %+v", got)
	}
}

func TestE2E_IdleTracksInflightAndDisconnect(t *testing.T) {
	s := newStack(t, nil)
	if st := idle(t, s); st.Active {
		t.Fatalf("expected idle worker, got %+v", st)
	}

	resp := post(t, s.url+"/stream", `{"input":{"prompt":"hang","stream":true}}`)
	first, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || !strings.Contains(first, "first") {
		t.Fatalf("first line %q err=%v", first, err)
	}
	if st := idle(t, s); !st.Active || st.Inflight != 1 {
		t.Fatalf("expected one active job, got %+v", st)
	}

	// Walking away from the stream abandons the job.
	resp.Body.Close()
	deadline := time.Now().Add(3 * time.Second)
	for s.counter.HasActiveRequests() {
		if time.Now().After(deadline) {
			t.Fatalf("inflight=%d after client disconnect", s.counter.Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := idle(t, s); st.Active || st.Inflight != 0 {
		t.Fatalf("expected idle worker, got %+v", st)
	}
}

func TestE2E_ReadyzProbesBackend(t *testing.T) {
	s := newStack(t, nil)
	resp, err := http.Get(s.url + "/readyz")
	if err != nil {
		t.Fatalf("get /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
