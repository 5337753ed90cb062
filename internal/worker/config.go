package worker

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tgiworker/internal/concurrency"
	"tgiworker/internal/params"
	"tgiworker/internal/tgi"
)

// Validation scopes reported in rejected-parameter diagnostics.
const scopeDefaults = "defaults"

// ControllerConfig encapsulates all tunables for Controller construction.
type ControllerConfig struct {
	Client tgi.Client
	// Counter is shared with whatever polls the idle probe. A fresh counter
	// wired to the inflight gauge is created when nil.
	Counter *concurrency.Counter
	// DefaultParams are merged under every job's generate_params. They are
	// validated once here against the union of all operations' accepted names.
	DefaultParams map[string]any
	Logger        zerolog.Logger
}

// NewController constructs a Controller from cfg.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Client == nil {
		return nil, errors.New("worker: nil generation client")
	}
	c := &Controller{
		client:  cfg.Client,
		counter: cfg.Counter,
		caps:    cfg.Client.Capabilities(),
		log:     cfg.Logger.With().Str("component", "worker").Logger(),
		started: time.Now(),
	}
	if c.counter == nil {
		c.counter = concurrency.New(concurrency.WithOnChange(setInflight))
	}
	c.validator = params.Validator{Logger: c.log, OnReject: countRejected}
	c.defaults = c.validator.Filter(cfg.DefaultParams, c.caps.All(), scopeDefaults)
	return c, nil
}
