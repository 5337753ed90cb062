package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tgiworker/internal/config"
)

// newRootCmd wires flags onto config resolution and the server run loop.
// getenv is injected so tests can resolve configuration hermetically.
func newRootCmd(getenv func(string) string) *cobra.Command {
	root := &cobra.Command{
		Use:           "tgiworker",
		Short:         "Serverless worker that forwards generation jobs to a TGI server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, warnings, err := resolveConfig(cmd, getenv)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				warnings = append(warnings, err)
			}
			for _, w := range warnings {
				log.Warn().Err(w).Msg("ignoring invalid configuration value")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, log)
		},
	}

	f := root.Flags()
	f.String("config", "", "Path to a YAML, JSON or TOML config file")
	f.String("addr", "", "HTTP listen address (default :8000, env TGIWORKER_ADDR)")
	f.String("base-url", "", "TGI server base URL (default http://localhost:8080, env BASE_URL)")
	f.String("token", "", "Bearer token sent to the TGI server (env TGIWORKER_TOKEN)")
	f.String("default-generate-params", "", "JSON object of default generation parameters (env DEFAULT_GENERATE_PARAMS)")
	f.Int("request-timeout-seconds", 0, "Per-call backend timeout; negative disables (default 10)")
	f.Int("connect-timeout-seconds", 0, "Backend connect timeout (default 5)")
	f.Int64("job-timeout-seconds", 0, "Upper bound for a whole job; 0 disables")
	f.Int64("max-body-bytes", 0, "Maximum job request body size (default 1 MiB)")
	f.Int64("max-concurrency", 0, "Jobs served at once before answering 429; 0 disables")
	f.String("log-level", "", "Log level: debug|info|warn|error (default info)")
	f.String("log-format", "", "Log format: json|console (default json)")
	f.String("request-log", "", "Per-request log level: off|error|info|debug")
	f.Bool("cors-enabled", false, "Enable CORS on the HTTP API")
	f.String("cors-origins", "", "Comma-separated allowed CORS origins")
	f.String("cors-methods", "GET,POST,OPTIONS", "Comma-separated allowed CORS methods")
	f.String("cors-headers", "Content-Type,Authorization", "Comma-separated allowed CORS headers")
	return root
}

// resolveConfig applies defaults, then the config file, then the
// environment, then explicitly set flags. Malformed env or flag values are
// returned as warnings; an unreadable config file is an error.
func resolveConfig(cmd *cobra.Command, getenv func(string) string) (config.Config, []error, error) {
	var warnings []error
	cfg := config.Defaults()
	f := cmd.Flags()

	if path, _ := f.GetString("config"); path != "" {
		fileCfg, err := config.Load(path)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = config.Merge(cfg, fileCfg)
	}

	cfg, err := config.FromEnv(cfg, getenv)
	if err != nil {
		warnings = append(warnings, unjoin(err)...)
	}

	var over config.Config
	if f.Changed("addr") {
		over.Addr, _ = f.GetString("addr")
	}
	if f.Changed("base-url") {
		over.BaseURL, _ = f.GetString("base-url")
	}
	if f.Changed("token") {
		over.Token, _ = f.GetString("token")
	}
	if f.Changed("default-generate-params") {
		raw, _ := f.GetString("default-generate-params")
		m, err := config.ParseDefaultParams(raw)
		if err != nil {
			warnings = append(warnings, err)
		} else {
			over.DefaultGenerateParams = m
		}
	}
	if f.Changed("request-timeout-seconds") {
		over.RequestTimeoutSeconds, _ = f.GetInt("request-timeout-seconds")
	}
	if f.Changed("connect-timeout-seconds") {
		over.ConnectTimeoutSeconds, _ = f.GetInt("connect-timeout-seconds")
	}
	if f.Changed("job-timeout-seconds") {
		over.JobTimeoutSeconds, _ = f.GetInt64("job-timeout-seconds")
	}
	if f.Changed("max-body-bytes") {
		over.MaxBodyBytes, _ = f.GetInt64("max-body-bytes")
	}
	if f.Changed("max-concurrency") {
		over.MaxConcurrency, _ = f.GetInt64("max-concurrency")
	}
	if f.Changed("log-level") {
		over.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		over.LogFormat, _ = f.GetString("log-format")
	}
	if f.Changed("request-log") {
		over.RequestLog, _ = f.GetString("request-log")
	}
	if f.Changed("cors-enabled") {
		over.CORSEnabled, _ = f.GetBool("cors-enabled")
	}
	if f.Changed("cors-origins") {
		v, _ := f.GetString("cors-origins")
		over.CORSAllowedOrigins = splitCSV(v)
	}
	// Methods and headers fall back to the flag defaults when nothing set them.
	if f.Changed("cors-methods") || len(cfg.CORSAllowedMethods) == 0 {
		v, _ := f.GetString("cors-methods")
		over.CORSAllowedMethods = splitCSV(v)
	}
	if f.Changed("cors-headers") || len(cfg.CORSAllowedHeaders) == 0 {
		v, _ := f.GetString("cors-headers")
		over.CORSAllowedHeaders = splitCSV(v)
	}
	return config.Merge(cfg, over), warnings, nil
}

// unjoin flattens an errors.Join result.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// newLogger builds the process logger. An unknown level falls back to info
// and is reported.
func newLogger(level, format string, out io.Writer) (zerolog.Logger, error) {
	var err error
	lvl, perr := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if perr != nil || level == "" {
		if level != "" {
			err = &config.ConfigurationError{Key: "log_level", Value: level, Err: perr}
		}
		lvl = zerolog.InfoLevel
	}
	w := out
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), err
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
