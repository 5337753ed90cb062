package tgi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var errEmptyResponse = errors.New("empty response")

// TokenStream is a one-pass, pull-based sequence of stream events. Recv
// returns io.EOF once the server finishes. Each Recv reads from the network,
// so the consumer sets the pace.
type TokenStream interface {
	Recv() (StreamResponse, error)
	Close() error
}

// maxStreamLine caps one SSE line. Longer lines fail the stream.
const maxStreamLine = 1 << 20

type sseStream struct {
	client *HTTPClient
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	sc     *bufio.Scanner

	// idle is the longest wait for the next line; zero disables the watchdog.
	// It only runs while a call is waiting on the server.
	idle     time.Duration
	watchdog *time.Timer
	expired  atomic.Bool

	done      bool
	closeOnce sync.Once
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxStreamLine)
	return sc
}

// arm starts the idle watchdog. When it fires the call is canceled and the
// pending read fails as a timeout.
func (s *sseStream) arm() {
	if s.idle <= 0 {
		return
	}
	s.watchdog = time.AfterFunc(s.idle, func() {
		s.expired.Store(true)
		s.cancel()
	})
}

// resume restarts the idle window while waiting on the server.
func (s *sseStream) resume() {
	if s.watchdog != nil && !s.expired.Load() {
		s.watchdog.Reset(s.idle)
	}
}

// pause stops the idle window while the consumer holds an event.
func (s *sseStream) pause() {
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
}

// release stops the watchdog and cancels the call.
func (s *sseStream) release() {
	s.pause()
	s.cancel()
}

// fail classifies a transport failure, reporting watchdog expiry as a timeout.
func (s *sseStream) fail(err error) error {
	if s.expired.Load() && s.parent.Err() == nil {
		return &TimeoutError{Op: OpGenerateStream, Timeout: s.idle, Err: context.DeadlineExceeded}
	}
	return s.client.classify(s.parent, OpGenerateStream, err)
}

// Recv implements TokenStream. Only the time spent waiting inside Recv
// counts against the idle timeout.
func (s *sseStream) Recv() (StreamResponse, error) {
	if s.done {
		return StreamResponse{}, io.EOF
	}
	s.resume()
	for s.sc.Scan() {
		s.resume()
		ev, ok, perr := s.parseLine(s.sc.Text())
		if perr != nil {
			s.done = true
			s.pause()
			return StreamResponse{}, perr
		}
		if ok {
			s.pause()
			return ev, nil
		}
	}
	s.done = true
	s.pause()
	err := s.sc.Err()
	switch {
	case err == nil:
		return StreamResponse{}, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return StreamResponse{}, &BackendError{Op: OpGenerateStream, Kind: "malformed_response", Message: "stream line exceeds 1 MiB", Err: err}
	}
	if cerr := s.ctx.Err(); cerr != nil {
		err = cerr
	}
	return StreamResponse{}, s.fail(err)
}

// parseLine decodes one SSE line. ok is false for lines that carry no event
// (blank keep-alives, comments, other fields).
func (s *sseStream) parseLine(line string) (StreamResponse, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return StreamResponse{}, false, nil
	}
	if !strings.HasPrefix(strings.ToLower(line), "data:") {
		s.client.log.Debug().Str("event", "unknown_stream_line").Str("line", line).Send()
		return StreamResponse{}, false, nil
	}
	data := strings.TrimSpace(line[len("data:"):])
	if data == "" {
		return StreamResponse{}, false, nil
	}
	if data == "[DONE]" {
		return StreamResponse{}, false, io.EOF
	}
	var ep errorPayload
	if err := json.Unmarshal([]byte(data), &ep); err != nil {
		return StreamResponse{}, false, &BackendError{Op: OpGenerateStream, Kind: "malformed_response", Message: err.Error(), Err: err}
	}
	if ep.Error != "" {
		kind := ep.ErrorType
		if kind == "" {
			kind = "generation"
		}
		return StreamResponse{}, false, &BackendError{Op: OpGenerateStream, Kind: kind, Message: ep.Error}
	}
	var ev StreamResponse
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return StreamResponse{}, false, &BackendError{Op: OpGenerateStream, Kind: "malformed_response", Message: err.Error(), Err: err}
	}
	return ev, true, nil
}

// Close releases the connection and the call's timeout. It is safe to call
// more than once and before the stream is drained.
func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.done = true
		s.release()
		err = s.body.Close()
	})
	return err
}
