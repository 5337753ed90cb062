package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Environment variables read by FromEnv.
const (
	EnvBaseURL               = "BASE_URL"
	EnvDefaultGenerateParams = "DEFAULT_GENERATE_PARAMS"
	EnvAddr                  = "TGIWORKER_ADDR"
	EnvToken                 = "TGIWORKER_TOKEN"
	EnvRequestTimeout        = "TGIWORKER_REQUEST_TIMEOUT_SECONDS"
	EnvMaxConcurrency        = "TGIWORKER_MAX_CONCURRENCY"
	EnvLogLevel              = "TGIWORKER_LOG_LEVEL"
	EnvLogFormat             = "TGIWORKER_LOG_FORMAT"
)

// ConfigurationError reports a malformed setting. It is not fatal: the
// offending value is ignored and the previous value is kept.
type ConfigurationError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ParseDefaultParams decodes a JSON object of generation parameters. An
// empty string yields an empty map.
func ParseDefaultParams(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := decodeJSON([]byte(s), &m); err != nil {
		return map[string]any{}, &ConfigurationError{Key: EnvDefaultGenerateParams, Value: s, Err: err}
	}
	if m == nil {
		return map[string]any{}, &ConfigurationError{Key: EnvDefaultGenerateParams, Value: s, Err: errors.New("must be a JSON object")}
	}
	return m, nil
}

// FromEnv overlays environment settings onto cfg. Malformed values are
// skipped and reported together as ConfigurationErrors; every well-formed
// value is still applied.
func FromEnv(cfg Config, getenv func(string) string) (Config, error) {
	var errs []error
	if v := getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv(EnvDefaultGenerateParams); v != "" {
		m, err := ParseDefaultParams(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.DefaultGenerateParams = m
		}
	}
	if v := getenv(EnvAddr); v != "" {
		cfg.Addr = v
	}
	if v := getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := getenv(EnvRequestTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, &ConfigurationError{Key: EnvRequestTimeout, Value: v, Err: err})
		} else {
			cfg.RequestTimeoutSeconds = n
		}
	}
	if v := getenv(EnvMaxConcurrency); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			if err == nil {
				err = errors.New("must not be negative")
			}
			errs = append(errs, &ConfigurationError{Key: EnvMaxConcurrency, Value: v, Err: err})
		} else {
			cfg.MaxConcurrency = n
		}
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = v
	}
	return cfg, errors.Join(errs...)
}
