package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables overriding file-based secrets.
const (
	EnvToken   = "TASKDIFF_TOKEN"
	EnvBaseURL = "TASKDIFF_BASE_URL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Forge    ForgeConfig     `toml:"forge"`
	Fetch    FetchConfig     `toml:"fetch"`
	Retry    RetryConfig     `toml:"retry"`
	Diff     DiffConfig      `toml:"diff"`
	Server   ServerConfig    `toml:"server"`
	Summary  SummaryConfig   `toml:"summary"`
	Projects []ProjectConfig `toml:"projects"`
}

// ForgeConfig contains connection settings for the version-control hosting API.
type ForgeConfig struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the per-request timeout, defaulting to 30s.
func (f ForgeConfig) Timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// FetchConfig tunes the concurrent commit fetcher.
type FetchConfig struct {
	Workers       int     `toml:"workers"`
	PageSize      int     `toml:"page_size"`
	MaxProbePage  int     `toml:"max_probe_page"`
	RatePerSecond float64 `toml:"rate_per_second"`
}

// RetryConfig tunes the retry policy applied to forge requests.
type RetryConfig struct {
	MaxAttempts int  `toml:"max_attempts"`
	BaseDelayMS int  `toml:"base_delay_ms"`
	Jitter      bool `toml:"jitter"`
}

// Policy converts the configuration into a [RetryPolicy], falling back to
// the defaults for unset fields.
func (r RetryConfig) Policy() RetryPolicy {
	policy := DefaultRetryPolicy()
	if r.MaxAttempts > 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(r.BaseDelayMS) * time.Millisecond
	}
	policy.Jitter = r.Jitter
	return policy
}

// DiffConfig tunes the diff engine's strategy selection.
type DiffConfig struct {
	// CompareThreshold is the delta size (in commits) at or above which the
	// engine abandons the compare endpoint for full indexing.
	CompareThreshold int `toml:"compare_threshold"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SummaryConfig controls the optional external risk summarizer.
type SummaryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

// ProjectConfig describes one project in the registry.
type ProjectConfig struct {
	Key         string `toml:"key" json:"key"`
	Name        string `toml:"name" json:"name"`
	ForgeID     int    `toml:"forge_id" json:"forge_id"`
	TaskPattern string `toml:"task_pattern" json:"task_pattern"`
	Default     bool   `toml:"default" json:"default"`
}

// LoadConfig reads and parses a TOML configuration file from the specified
// path, then applies environment overrides for secrets.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file already exists at %s", ErrInvalidInput, path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() {
	if token := os.Getenv(EnvToken); token != "" {
		c.Forge.Token = token
	}
	if base := os.Getenv(EnvBaseURL); base != "" {
		c.Forge.BaseURL = base
	}
}

// Project resolves a project key against the registry. An empty key selects
// the entry marked default, or the first entry when none is marked.
func (c *Config) Project(key string) (ProjectConfig, error) {
	if len(c.Projects) == 0 {
		return ProjectConfig{}, fmt.Errorf("%w: no projects configured", ErrMissingConfig)
	}

	if key == "" {
		for _, p := range c.Projects {
			if p.Default {
				return p, nil
			}
		}
		return c.Projects[0], nil
	}

	for _, p := range c.Projects {
		if p.Key == key {
			return p, nil
		}
	}
	return ProjectConfig{}, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownProject, key, strings.Join(c.ProjectKeys(), ", "))
}

// ProjectKeys returns the configured project keys in registry order.
func (c *Config) ProjectKeys() []string {
	keys := make([]string, 0, len(c.Projects))
	for _, p := range c.Projects {
		keys = append(keys, p.Key)
	}
	return keys
}
