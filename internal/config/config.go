package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Store   StoreConfig   `yaml:"store"`
	Audit   AuditConfig   `yaml:"audit"`
	API     APIConfig     `yaml:"api"`
	Prompt  PromptConfig  `yaml:"prompt"`
	Logging LoggingConfig `yaml:"logging"`
}

// MonitorConfig controls the poll-detect cycle and the authorization gate.
type MonitorConfig struct {
	// PollInterval is the snapshot cadence. It bounds worst-case detection
	// latency: a protected app may run unchallenged for at most one interval.
	PollInterval string `yaml:"poll_interval"`

	// ChallengeTimeout is how long a pending challenge waits for a verdict
	// before resolving to timed_out. Clamped to 5s..60s.
	ChallengeTimeout string `yaml:"challenge_timeout"`

	// MaxAttempts is the number of credential submissions consumed before a
	// pending challenge resolves to denied.
	MaxAttempts int `yaml:"max_attempts"`

	// ResolverWindowCycles is how many poll cycles package identity
	// resolution may retry before an arrival is treated as unmatched.
	ResolverWindowCycles int `yaml:"resolver_window_cycles"`

	// KillGracePeriod is how long enforcement waits after a graceful
	// termination request before escalating to a forceful kill.
	KillGracePeriod string `yaml:"kill_grace_period"`
}

type StoreConfig struct {
	// SQLitePath holds protected entries, settings and credentials.
	SQLitePath string `yaml:"sqlite_path"`
}

// AuditConfig controls durable attempt logging. Enabled gates the JSONL
// mirror; the SQLite index is always written. Omitted means on.
type AuditConfig struct {
	Enabled  *bool          `yaml:"enabled"`
	Output   string         `yaml:"output"` // jsonl file path
	Rotation RotationConfig `yaml:"rotation"`

	// SQLitePath is the queryable audit index. Empty reuses store.sqlite_path.
	SQLitePath string `yaml:"sqlite_path"`

	Webhook AuditWebhookConfig `yaml:"webhook"`
}

type RotationConfig struct {
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
}

type AuditWebhookConfig struct {
	URL           string            `yaml:"url"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval string            `yaml:"flush_interval"`
	Timeout       string            `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
}

// APIConfig controls the local operator API. Enabled is a pointer so an
// omitted key means on; only an explicit `enabled: false` turns it off.
type APIConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// APIEnabled resolves the tri-state enabled flag.
func (c *Config) APIEnabled() bool {
	return c.API.Enabled == nil || *c.API.Enabled
}

// AuditJSONLEnabled resolves the tri-state audit mirror flag.
func (c *Config) AuditJSONLEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}

// PromptConfig controls the native credential dialog shown when a launch is
// intercepted. Mode is auto (show when a display is available and not in CI),
// enabled, or disabled.
type PromptConfig struct {
	Mode string `yaml:"mode"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stderr, stdout, or a file path
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(b)
}

// LoadFromBytes parses configuration from bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

// DefaultStorePath returns the per-user sqlite database location.
func DefaultStorePath() string {
	return filepath.Join(dataDir(), "applockd.db")
}

func dataDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "applockd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".applockd")
}

func applyDefaults(cfg *Config) {
	if cfg.Monitor.PollInterval == "" {
		cfg.Monitor.PollInterval = "500ms"
	}
	if cfg.Monitor.ChallengeTimeout == "" {
		cfg.Monitor.ChallengeTimeout = "15s"
	}
	if cfg.Monitor.MaxAttempts <= 0 {
		cfg.Monitor.MaxAttempts = 3
	}
	if cfg.Monitor.ResolverWindowCycles <= 0 {
		cfg.Monitor.ResolverWindowCycles = 6
	}
	if cfg.Monitor.KillGracePeriod == "" {
		cfg.Monitor.KillGracePeriod = "3s"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = DefaultStorePath()
	}
	if cfg.Audit.Output == "" {
		cfg.Audit.Output = filepath.Join(dataDir(), "audit.jsonl")
	}
	if cfg.Audit.Rotation.MaxSizeMB <= 0 {
		cfg.Audit.Rotation.MaxSizeMB = 50
	}
	if cfg.Audit.Rotation.MaxBackups <= 0 {
		cfg.Audit.Rotation.MaxBackups = 3
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = cfg.Store.SQLitePath
	}
	if cfg.Audit.Webhook.BatchSize <= 0 {
		cfg.Audit.Webhook.BatchSize = 50
	}
	if cfg.Audit.Webhook.FlushInterval == "" {
		cfg.Audit.Webhook.FlushInterval = "5s"
	}
	if cfg.Audit.Webhook.Timeout == "" {
		cfg.Audit.Webhook.Timeout = "10s"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = "127.0.0.1:7832"
	}
	if cfg.Prompt.Mode == "" {
		cfg.Prompt.Mode = "auto"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
}

func validate(cfg *Config) error {
	if _, err := cfg.PollInterval(); err != nil {
		return fmt.Errorf("monitor.poll_interval: %w", err)
	}
	ct, err := cfg.ChallengeTimeout()
	if err != nil {
		return fmt.Errorf("monitor.challenge_timeout: %w", err)
	}
	if ct < 5*time.Second || ct > 60*time.Second {
		return fmt.Errorf("monitor.challenge_timeout must be between 5s and 60s, got %s", ct)
	}
	if _, err := cfg.KillGracePeriod(); err != nil {
		return fmt.Errorf("monitor.kill_grace_period: %w", err)
	}
	switch cfg.Prompt.Mode {
	case "auto", "enabled", "disabled":
	default:
		return fmt.Errorf("prompt.mode must be auto, enabled or disabled, got %q", cfg.Prompt.Mode)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	return nil
}

func (c *Config) PollInterval() (time.Duration, error) {
	return parseDuration(c.Monitor.PollInterval, 500*time.Millisecond)
}

func (c *Config) ChallengeTimeout() (time.Duration, error) {
	return parseDuration(c.Monitor.ChallengeTimeout, 15*time.Second)
}

func (c *Config) KillGracePeriod() (time.Duration, error) {
	return parseDuration(c.Monitor.KillGracePeriod, 3*time.Second)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}
