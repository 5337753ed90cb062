package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the worker.
// Zero values mean "unspecified" and are replaced by Defaults via Merge.
type Config struct {
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	Token   string `json:"token" yaml:"token" toml:"token"`
	// DefaultGenerateParams are applied under every job's generate_params.
	DefaultGenerateParams map[string]any `json:"default_generate_params" yaml:"default_generate_params" toml:"default_generate_params"`

	RequestTimeoutSeconds int   `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ConnectTimeoutSeconds int   `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	JobTimeoutSeconds     int64 `json:"job_timeout_seconds" yaml:"job_timeout_seconds" toml:"job_timeout_seconds"`
	MaxBodyBytes          int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxConcurrency        int64 `json:"max_concurrency" yaml:"max_concurrency" toml:"max_concurrency"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	// RequestLog is the default per-request log level of the HTTP layer.
	RequestLog string `json:"request_log" yaml:"request_log" toml:"request_log"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Addr:                  ":8000",
		BaseURL:               "http://localhost:8080",
		DefaultGenerateParams: map[string]any{},
		RequestTimeoutSeconds: 10,
		ConnectTimeoutSeconds: 5,
		MaxBodyBytes:          1 << 20,
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml. A leading ~ expands to the home dir.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	p, err := expandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := decodeJSON(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays the set fields of over onto base.
func Merge(base, over Config) Config {
	out := base
	if over.Addr != "" {
		out.Addr = over.Addr
	}
	if over.BaseURL != "" {
		out.BaseURL = over.BaseURL
	}
	if over.Token != "" {
		out.Token = over.Token
	}
	if over.DefaultGenerateParams != nil {
		out.DefaultGenerateParams = over.DefaultGenerateParams
	}
	if over.RequestTimeoutSeconds != 0 {
		out.RequestTimeoutSeconds = over.RequestTimeoutSeconds
	}
	if over.ConnectTimeoutSeconds != 0 {
		out.ConnectTimeoutSeconds = over.ConnectTimeoutSeconds
	}
	if over.JobTimeoutSeconds != 0 {
		out.JobTimeoutSeconds = over.JobTimeoutSeconds
	}
	if over.MaxBodyBytes != 0 {
		out.MaxBodyBytes = over.MaxBodyBytes
	}
	if over.MaxConcurrency != 0 {
		out.MaxConcurrency = over.MaxConcurrency
	}
	if over.LogLevel != "" {
		out.LogLevel = over.LogLevel
	}
	if over.LogFormat != "" {
		out.LogFormat = over.LogFormat
	}
	if over.RequestLog != "" {
		out.RequestLog = over.RequestLog
	}
	if over.CORSEnabled {
		out.CORSEnabled = true
	}
	if len(over.CORSAllowedOrigins) > 0 {
		out.CORSAllowedOrigins = over.CORSAllowedOrigins
	}
	if len(over.CORSAllowedMethods) > 0 {
		out.CORSAllowedMethods = over.CORSAllowedMethods
	}
	if len(over.CORSAllowedHeaders) > 0 {
		out.CORSAllowedHeaders = over.CORSAllowedHeaders
	}
	return out
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// decodeJSON decodes a single JSON value into v. Numbers stay json.Number so
// integers above 2^53 reach the backend unchanged.
func decodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
