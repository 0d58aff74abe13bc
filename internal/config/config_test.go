package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
database:
  path: engine.db
  extra: true
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRejectsMultiDocument(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
---
llm:
  default_provider: anthropic
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for multi-document config")
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesSchedulerTickInterval(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
scheduler:
  tick_interval: 5m
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "tick_interval") {
		t.Fatalf("expected tick_interval error, got %v", err)
	}
}

func TestLoadValidatesSearchPoolSize(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
search:
  pool_size: -1
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "pool_size") {
		t.Fatalf("expected pool_size error, got %v", err)
	}
}

func TestLoadValidConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
      default_model: claude-sonnet
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "engine.db" {
		t.Fatalf("expected default database path, got %q", cfg.Database.Path)
	}
	if cfg.Search.PoolSize != 2 {
		t.Fatalf("expected default search pool size 2, got %d", cfg.Search.PoolSize)
	}
	if cfg.Artifacts.TemplatesDir != "templates" {
		t.Fatalf("expected default templates dir, got %q", cfg.Artifacts.TemplatesDir)
	}
	if cfg.Artifacts.PreviewDir != "previews" {
		t.Fatalf("expected default preview dir, got %q", cfg.Artifacts.PreviewDir)
	}
	if cfg.Scheduler.TickInterval != 15*time.Second {
		t.Fatalf("expected default tick interval, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("expected default logging config, got %+v", cfg.Logging)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected version defaulted to CurrentVersion, got %d", cfg.Version)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_DATABASE_PATH", "/var/lib/engine/override.db")
	t.Setenv("ENGINE_LOG_LEVEL", "debug")

	path := writeConfig(t, `
database:
  path: engine.db
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/var/lib/engine/override.db" {
		t.Fatalf("expected database path override, got %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected log level override, got %q", cfg.Logging.Level)
	}
}

func TestLoadExpandsEnvVarsInFile(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-from-env")

	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: "${TEST_ANTHROPIC_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-from-env" {
		t.Fatalf("expected expanded api_key, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestLoadSearchAndSkillsConfig(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
search:
  pool_size: 4
  fingerprint:
    platform: MacIntel
    locale: en-US
skills:
  sources:
    - name: builtin
      paths: ["/opt/skills"]
      enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.PoolSize != 4 {
		t.Fatalf("expected pool_size 4, got %d", cfg.Search.PoolSize)
	}
	if cfg.Search.Fingerprint.Platform != "MacIntel" {
		t.Fatalf("expected platform override, got %q", cfg.Search.Fingerprint.Platform)
	}
	if len(cfg.Skills.Sources) != 1 || cfg.Skills.Sources[0].Name != "builtin" {
		t.Fatalf("expected one skill source named builtin, got %+v", cfg.Skills.Sources)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
