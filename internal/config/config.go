package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aipp-workbench/engine/internal/mcp"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the engine.
type Config struct {
	Version   int             `yaml:"version"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	MCP       mcp.Config      `yaml:"mcp"`
	Search    SearchConfig    `yaml:"search"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Skills    SkillsConfig    `yaml:"skills"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
}

// ServerConfig configures the serve command's metrics/health HTTP listener.
// An empty MetricsAddr is defaulted to 127.0.0.1:9090; the value "off"
// disables the listener.
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// DatabaseConfig points at the SQLite store backing every engine component.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig configures the provider resolver used by the orchestrator and
// scheduler.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain lists provider IDs. It is parsed from the file, but no
	// component reads it: a failing default provider is not retried against
	// these providers.
	FallbackChain []string `yaml:"fallback_chain"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`

	// Region/AccessKeyID/SecretAccessKey configure the bedrock provider only.
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// APIVersion configures the azure provider only.
	APIVersion string `yaml:"api_version"`
}

// SearchConfig configures the built-in browser-search tool executor.
type SearchConfig struct {
	Fingerprint FingerprintYAMLConfig `yaml:"fingerprint"`
	Proxy       ProxyYAMLConfig       `yaml:"proxy"`
	PoolSize    int                   `yaml:"pool_size"`
}

// FingerprintYAMLConfig mirrors searchexec.FingerprintConfig so it can be
// loaded from YAML without importing searchexec's rand-seeded defaults into
// the config package.
type FingerprintYAMLConfig struct {
	TimezoneOffsetMinutes int    `yaml:"timezone_offset_minutes"`
	Platform              string `yaml:"platform"`
	Locale                string `yaml:"locale"`
	UserAgent             string `yaml:"user_agent"`
	ViewportWidth         int    `yaml:"viewport_width"`
	ViewportHeight        int    `yaml:"viewport_height"`
}

type ProxyYAMLConfig struct {
	Server string `yaml:"server"`
}

// ArtifactsConfig configures the artifact preview runner.
type ArtifactsConfig struct {
	TemplatesDir string `yaml:"templates_dir"`
	PreviewDir   string `yaml:"preview_dir"`
	BunPath      string `yaml:"bun_path"`
}

// SkillsConfig configures the skill loader's scan sources.
type SkillsConfig struct {
	Sources []SkillSourceConfig `yaml:"sources"`
}

type SkillSourceConfig struct {
	Name    string   `yaml:"name"`
	Paths   []string `yaml:"paths"`
	Enabled bool     `yaml:"enabled"`
}

// SchedulerConfig configures the recurring task engine's poll loop.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "engine.db"
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Search.PoolSize == 0 {
		cfg.Search.PoolSize = 2
	}
	if cfg.Artifacts.TemplatesDir == "" {
		cfg.Artifacts.TemplatesDir = "templates"
	}
	if cfg.Artifacts.PreviewDir == "" {
		cfg.Artifacts.PreviewDir = "previews"
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = 15 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = "127.0.0.1:9090"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("ENGINE_DATABASE_PATH")); value != "" {
		cfg.Database.Path = value
	}
	if value := strings.TrimSpace(os.Getenv("ENGINE_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("ENGINE_METRICS_ADDR")); value != "" {
		cfg.Server.MetricsAddr = value
	}
}

type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if err := ValidateVersion(cfg.Version); err != nil {
		issues = append(issues, err.Error())
	}

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}

	if cfg.Scheduler.TickInterval < 0 {
		issues = append(issues, "scheduler.tick_interval must be >= 0")
	}
	if cfg.Scheduler.TickInterval > 60*time.Second {
		issues = append(issues, "scheduler.tick_interval must be <= 60s")
	}

	if cfg.Search.PoolSize < 0 {
		issues = append(issues, "search.pool_size must be >= 0")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}

	return nil
}
