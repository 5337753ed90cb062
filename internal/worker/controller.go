package worker

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"tgiworker/internal/concurrency"
	"tgiworker/internal/params"
	"tgiworker/internal/tgi"
	"tgiworker/pkg/types"
)

// Controller runs job lifecycles against a generation backend.
type Controller struct {
	client    tgi.Client
	counter   *concurrency.Counter
	caps      tgi.Capabilities
	defaults  map[string]any
	validator params.Validator
	log       zerolog.Logger
	started   time.Time
}

// Handle returns the lazy result sequence of job. Nothing happens until the
// sequence is ranged over; ranging it runs exactly one lifecycle.
//
// A failure is delivered as the last pair with a non-nil error. Breaking out
// of the range early abandons the lifecycle: the backend stream is closed and
// the in-flight counter is still released exactly once.
func (c *Controller) Handle(ctx context.Context, job types.Job) iter.Seq2[types.Result, error] {
	return func(yield func(types.Result, error) bool) {
		active := c.counter.Increment()
		start := time.Now()
		log := c.log.With().Str("job_id", job.ID).Logger()
		lc := &lifecycle{mode: modeUnknown, outcome: outcomeFailed}
		defer func() {
			remaining := c.counter.Decrement()
			elapsed := time.Since(start)
			requestsTotal.WithLabelValues(lc.mode, lc.outcome).Inc()
			requestDuration.WithLabelValues(lc.mode).Observe(elapsed.Seconds())
			log.Info().
				Str("outcome", lc.outcome).
				Dur("elapsed", elapsed).
				Int64("active_requests", remaining).
				Msg("finished request")
		}()
		log.Info().Int64("active_requests", active).Msg("starting request")
		log.Debug().Interface("input", job.Input).Msg("job")

		abandoned, err := c.run(ctx, job, log, lc, yield)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("request failed")
			yield(types.Result{}, err)
		case abandoned:
			lc.outcome = outcomeAbandoned
		default:
			lc.outcome = outcomeSucceeded
		}
	}
}

// lifecycle carries per-request bookkeeping for metrics and logs.
type lifecycle struct {
	mode    string
	outcome string
}

// run does the work between the counter steps. abandoned is true when the
// consumer stopped ranging before the sequence ended.
func (c *Controller) run(ctx context.Context, job types.Job, log zerolog.Logger, lc *lifecycle, yield func(types.Result, error) bool) (abandoned bool, err error) {
	in, err := parseInput(job.Input)
	if err != nil {
		return false, err
	}
	effective := params.Merge(c.defaults, in.GenerateParams)

	log.Debug().Str("prompt", in.Prompt).Msg("prompt")
	log.Info().
		Interface("generate_params", effective).
		Bool("stream", in.Stream).
		Msg("dispatching request")

	if in.Stream {
		lc.mode = modeStream
		return c.stream(ctx, in.Prompt, effective, yield)
	}
	lc.mode = modeGenerate
	return c.generate(ctx, in.Prompt, effective, yield)
}

func (c *Controller) stream(ctx context.Context, prompt string, effective map[string]any, yield func(types.Result, error) bool) (bool, error) {
	p := c.validator.Filter(effective, c.caps.Accepted(tgi.OpGenerateStream), string(tgi.OpGenerateStream))
	s, err := c.client.GenerateStream(ctx, prompt, p)
	if err != nil {
		return false, err
	}
	defer s.Close()
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if ev.Token.Special {
			tokensTotal.WithLabelValues("suppressed").Inc()
			continue
		}
		tokensTotal.WithLabelValues("emitted").Inc()
		if !yield(types.Result{Text: ev.Token.Text}, nil) {
			return true, nil
		}
	}
}

func (c *Controller) generate(ctx context.Context, prompt string, effective map[string]any, yield func(types.Result, error) bool) (bool, error) {
	p := c.validator.Filter(effective, c.caps.Accepted(tgi.OpGenerate), string(tgi.OpGenerate))
	res, err := c.client.Generate(ctx, prompt, p)
	if err != nil {
		return false, err
	}
	return !yield(types.Result{Text: res.GeneratedText}, nil), nil
}

// Collect runs job to completion and returns every result item. On failure
// the items produced before the failure are returned with the error.
func (c *Controller) Collect(ctx context.Context, job types.Job) ([]types.Result, error) {
	var out []types.Result
	for r, err := range c.Handle(ctx, job) {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// HasActiveRequests is the idle probe: true while any lifecycle is in flight.
// The value is a snapshot and may change right after the call.
func (c *Controller) HasActiveRequests() bool { return c.counter.HasActiveRequests() }

// Inflight returns the current in-flight lifecycle count.
func (c *Controller) Inflight() int64 { return c.counter.Snapshot() }

// DefaultParams returns a copy of the validated default parameters.
func (c *Controller) DefaultParams() map[string]any { return params.Merge(c.defaults, nil) }

// Capabilities returns the backend's accepted-parameter table.
func (c *Controller) Capabilities() tgi.Capabilities { return c.caps }

// healthChecker is implemented by clients that can probe backend readiness.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Ready reports whether the backend answers its health probe. Clients without
// a probe are assumed ready.
func (c *Controller) Ready(ctx context.Context) bool {
	hc, ok := c.client.(healthChecker)
	if !ok {
		return true
	}
	if err := hc.Health(ctx); err != nil {
		c.log.Debug().Err(err).Msg("backend not ready")
		return false
	}
	return true
}

// baseURLer is implemented by clients bound to a single backend address.
type baseURLer interface {
	BaseURL() string
}

// Status returns a point-in-time view of the controller for /status.
func (c *Controller) Status() types.StatusResponse {
	accepted := make(map[string][]string, len(c.caps))
	for op, names := range c.caps {
		accepted[string(op)] = names.Names()
	}
	st := types.StatusResponse{
		Inflight:       c.counter.Snapshot(),
		DefaultParams:  c.DefaultParams(),
		AcceptedParams: accepted,
		UptimeSeconds:  int64(time.Since(c.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	if b, ok := c.client.(baseURLer); ok {
		st.BaseURL = b.BaseURL()
	}
	return st
}
