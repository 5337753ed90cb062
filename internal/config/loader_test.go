package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nbase_url: http://tgi:80\nmax_concurrency: 4\ndefault_generate_params:\n  max_new_tokens: 10\n  temperature: 0.5\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.BaseURL != "http://tgi:80" || cfg.MaxConcurrency != 4 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.DefaultGenerateParams["max_new_tokens"] != 10 || cfg.DefaultGenerateParams["temperature"] != 0.5 {
		t.Fatalf("params=%v", cfg.DefaultGenerateParams)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","base_url":"http://x","request_timeout_seconds":30,"default_generate_params":{"top_k":5}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.BaseURL != "http://x" || cfg.RequestTimeoutSeconds != 30 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.DefaultGenerateParams["top_k"] != json.Number("5") {
		t.Fatalf("params=%v", cfg.DefaultGenerateParams)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nbase_url=\"http://y\"\ncors_enabled=true\ncors_allowed_origins=[\"*\"]\n[default_generate_params]\nmax_new_tokens=64\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.BaseURL != "http://y" || !cfg.CORSEnabled || len(cfg.CORSAllowedOrigins) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.DefaultGenerateParams["max_new_tokens"] != int64(64) {
		t.Fatalf("params=%#v", cfg.DefaultGenerateParams)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	bad := writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "base_url": }`)
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
	badTOML := writeTempFile(t, d, "bad.toml", "addr=:8080\nbase_url\n")
	if _, err := Load(badTOML); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestMergeKeepsUnsetFields(t *testing.T) {
	base := Defaults()
	got := Merge(base, Config{BaseURL: "http://other", MaxConcurrency: 2})
	if got.BaseURL != "http://other" || got.MaxConcurrency != 2 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.Addr != base.Addr || got.RequestTimeoutSeconds != base.RequestTimeoutSeconds || got.LogLevel != "info" {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.BaseURL != "http://localhost:8080" {
		t.Fatalf("base url=%s", d.BaseURL)
	}
	if d.DefaultGenerateParams == nil || len(d.DefaultGenerateParams) != 0 {
		t.Fatalf("default params=%v", d.DefaultGenerateParams)
	}
}
