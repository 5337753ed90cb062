package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tgiworker/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Handle(ctx context.Context, job types.Job) iter.Seq2[types.Result, error]
	HasActiveRequests() bool
	Inflight() int64
	Status() types.StatusResponse
	Ready(ctx context.Context) bool
}

// NewMux builds the worker's HTTP surface around svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints; NDJSON is not in the default set
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	r.Group(func(r chi.Router) {
		r.Use(requireJSON)
		r.Use(admit)
		r.Post("/runsync", runSyncHandler(svc))
		r.Post("/stream", streamHandler(svc))
	})

	r.Get("/idle", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.IdleResponse{
			Active:   svc.HasActiveRequests(),
			Inflight: svc.Inflight(),
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("backend unavailable"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// requireJSON rejects job requests that are not application/json.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// admit enforces the max concurrency cap, if any.
func admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sem := admission
		if sem == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !sem.TryAcquire(1) {
			IncrementBackpressure("max_concurrency")
			writeJSONError(w, http.StatusTooManyRequests, "worker at capacity")
			return
		}
		defer sem.Release(1)
		next.ServeHTTP(w, r)
	})
}

// decodeJob reads the job body. The job ID is generated when absent.
func decodeJob(w http.ResponseWriter, r *http.Request) (types.Job, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var job types.Job
	dec := json.NewDecoder(r.Body)
	// Keep numbers verbatim; float64 would round seeds above 2^53.
	dec.UseNumber()
	if err := dec.Decode(&job); err != nil {
		// Oversized bodies land here too; the size limit is not disclosed.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return types.Job{}, false
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return job, true
}

// runSyncHandler runs a job to completion and answers with every result item.
func runSyncHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := decodeJob(w, r)
		if !ok {
			return
		}
		ctx, cancel := jobContext(r)
		defer cancel()
		lvl := requestLogLevel(r)
		start := time.Now()
		startEvent(r, lvl, job.ID).Msg("job start")

		out := []types.Result{}
		var runErr error
		for res, err := range svc.Handle(ctx, job) {
			if err != nil {
				runErr = err
				break
			}
			out = append(out, res)
		}
		if runErr != nil {
			if clientGone(r) {
				return
			}
			status := statusFor(runErr)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("backend")
			}
			endEvent(r, lvl, job.ID, status).Dur("dur", time.Since(start)).Err(runErr).Msg("job end")
			writeJSON(w, status, types.RunResponse{
				ID:     job.ID,
				Status: types.StatusFailed,
				Output: out,
				Error:  runErr.Error(),
			})
			return
		}
		endEvent(r, lvl, job.ID, http.StatusOK).Dur("dur", time.Since(start)).Int("items", len(out)).Msg("job end")
		writeJSON(w, http.StatusOK, types.RunResponse{
			ID:     job.ID,
			Status: types.StatusCompleted,
			Output: out,
		})
	}
}

// streamHandler writes each result item as an NDJSON line as soon as it is
// produced. A failure before the first item is answered with a JSON error and
// a mapped status; a failure after it ends the stream with a StreamError line.
// A client that stops reading abandons the job.
func streamHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := decodeJob(w, r)
		if !ok {
			return
		}
		ctx, cancel := jobContext(r)
		defer cancel()
		lvl := requestLogLevel(r)
		start := time.Now()
		startEvent(r, lvl, job.ID).Msg("job start")

		writer := io.Writer(w)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{jobID: job.ID})
		}
		enc := json.NewEncoder(writer)
		flush := func() {}
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		begin := func() {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
		}

		items := 0
		for res, err := range svc.Handle(ctx, job) {
			if err != nil {
				if clientGone(r) {
					return
				}
				status := statusFor(err)
				endEvent(r, lvl, job.ID, status).Dur("dur", time.Since(start)).Int("items", items).Err(err).Msg("job end")
				if items == 0 {
					if status == http.StatusTooManyRequests {
						IncrementBackpressure("backend")
					}
					writeJSONError(w, status, err.Error())
					return
				}
				_ = enc.Encode(types.StreamError{Error: err.Error()})
				flush()
				return
			}
			if items == 0 {
				begin()
			}
			items++
			if err := enc.Encode(res); err != nil {
				endEvent(r, lvl, job.ID, http.StatusOK).Dur("dur", time.Since(start)).Int("items", items).Err(err).Msg("client went away")
				return
			}
			flush()
		}
		if items == 0 {
			begin()
		}
		endEvent(r, lvl, job.ID, http.StatusOK).Dur("dur", time.Since(start)).Int("items", items).Msg("job end")
	}
}
