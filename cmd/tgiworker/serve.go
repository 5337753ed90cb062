package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tgiworker/internal/config"
	"tgiworker/internal/httpapi"
	"tgiworker/internal/tgi"
	"tgiworker/internal/worker"
)

const shutdownGrace = 5 * time.Second

// run serves the worker API until ctx is canceled, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	handler, err := buildHandler(ctx, cfg, log)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// buildHandler constructs the backend client, the controller and the HTTP
// surface from cfg. base is canceled on shutdown and stops in-flight jobs.
func buildHandler(base context.Context, cfg config.Config, log zerolog.Logger) (http.Handler, error) {
	client := tgi.NewHTTPClient(tgi.ClientConfig{
		BaseURL:        cfg.BaseURL,
		Token:          cfg.Token,
		Timeout:        time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		Logger:         log,
	})
	ctrl, err := worker.NewController(worker.ControllerConfig{
		Client:        client,
		DefaultParams: cfg.DefaultGenerateParams,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	if cfg.RequestLog != "" {
		httpapi.SetRequestLogLevel(cfg.RequestLog)
	}
	httpapi.SetBaseContext(base)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetJobTimeoutSeconds(cfg.JobTimeoutSeconds)
	httpapi.SetMaxConcurrency(cfg.MaxConcurrency)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)

	log.Info().
		Str("base_url", client.BaseURL()).
		Interface("default_params", ctrl.DefaultParams()).
		Int64("max_concurrency", cfg.MaxConcurrency).
		Msg("starting TGI worker with streaming enabled")
	return httpapi.NewMux(ctrl), nil
}
