package httpapi

import (
	"bytes"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once at startup.
var defaultLogLevel = parseLevel(os.Getenv("TGIWORKER_REQUEST_LOG"))

// SetRequestLogLevel overrides the default per-request log level.
func SetRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

// requestLogLevel honors ?log= and X-Log-Level overrides.
func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// startEvent returns the "job start" event, or nil when lvl mutes it.
func startEvent(r *http.Request, lvl LogLevel, jobID string) *zerolog.Event {
	if lvl < LevelInfo {
		return nil
	}
	return withRequest(zlog.Info(), r, jobID)
}

// endEvent returns the "job end" event for status. Server-side failures are
// logged at error level and survive LevelError; everything else needs LevelInfo.
func endEvent(r *http.Request, lvl LogLevel, jobID string, status int) *zerolog.Event {
	var e *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError && lvl >= LevelError:
		e = zlog.Error()
	case lvl >= LevelInfo:
		e = zlog.Info()
	default:
		return nil
	}
	return withRequest(e, r, jobID).Int("status", status)
}

func withRequest(e *zerolog.Event, r *http.Request, jobID string) *zerolog.Event {
	e = e.Str("path", r.URL.Path).Str("job_id", jobID)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

// loggingLineWriter logs complete NDJSON lines at debug level.
type loggingLineWriter struct {
	jobID string
	buf   []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if idx > 0 {
			zlog.Debug().Str("job_id", lw.jobID).Str("line", string(lw.buf[:idx])).Msg("stream>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
