package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment overrides
const EnvPrefix = "IGENGAGE_"

// Config holds all configuration options for igengage
type Config struct {
	// Platform client settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Persisted session settings
	Session SessionConfig `yaml:"session" json:"session"`

	// Login retry policy
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Human pacing and request budget
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retrieval controller policy
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`

	// Export settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics dump
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// InstagramConfig holds platform client configuration
type InstagramConfig struct {
	Account   string        `yaml:"account" json:"account"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	AppID     string        `yaml:"app_id" json:"app_id"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	PageSize  int           `yaml:"page_size" json:"page_size"`
}

// SessionConfig controls where the opaque session token is kept
type SessionConfig struct {
	// Backend is one of auto, file, keyring
	Backend   string `yaml:"backend" json:"backend"`
	Directory string `yaml:"directory" json:"directory"`
}

// AuthConfig controls full credential logins
type AuthConfig struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts" json:"max_login_attempts"`
	RetryBase        time.Duration `yaml:"retry_base" json:"retry_base"`
}

// RateLimitConfig holds the pacing tiers
type RateLimitConfig struct {
	BaseMin          time.Duration `yaml:"base_min" json:"base_min"`
	BaseMax          time.Duration `yaml:"base_max" json:"base_max"`
	ShortBreakMin    time.Duration `yaml:"short_break_min" json:"short_break_min"`
	ShortBreakMax    time.Duration `yaml:"short_break_max" json:"short_break_max"`
	LongBreakMin     time.Duration `yaml:"long_break_min" json:"long_break_min"`
	LongBreakMax     time.Duration `yaml:"long_break_max" json:"long_break_max"`
	Modulus          int           `yaml:"modulus" json:"modulus"`
	RandomizeModulus bool          `yaml:"randomize_modulus" json:"randomize_modulus"`
	ModulusMin       int           `yaml:"modulus_min" json:"modulus_min"`
	ModulusMax       int           `yaml:"modulus_max" json:"modulus_max"`
	LongModulus      int           `yaml:"long_modulus" json:"long_modulus"`
	Jitter           bool          `yaml:"jitter" json:"jitter"`
	JitterFactor     float64       `yaml:"jitter_factor" json:"jitter_factor"`
	AdditiveJitter   time.Duration `yaml:"additive_jitter" json:"additive_jitter"`

	// RequestsPerMinute is a hard ceiling on HTTP requests, 0 disables it
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetrievalConfig holds the retrieval controller policy
type RetrievalConfig struct {
	MaxLikes        int           `yaml:"max_likes" json:"max_likes"`
	MaxComments     int           `yaml:"max_comments" json:"max_comments"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	BackoffMin      time.Duration `yaml:"backoff_min" json:"backoff_min"`
	BackoffMax      time.Duration `yaml:"backoff_max" json:"backoff_max"`
	PhasePauseMin   time.Duration `yaml:"phase_pause_min" json:"phase_pause_min"`
	PhasePauseMax   time.Duration `yaml:"phase_pause_max" json:"phase_pause_max"`
	CheckpointDir   string        `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	CheckpointPhase bool          `yaml:"checkpoint_phase" json:"checkpoint_phase"`
}

// OutputConfig holds export configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	// Format is one of xlsx, txt, json
	Format     string `yaml:"format" json:"format"`
	FilePrefix string `yaml:"file_prefix" json:"file_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// MetricsConfig holds the optional prometheus textfile dump
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			BaseURL:   "https://www.instagram.com",
			AppID:     "936619743392459",
			Timeout:   30 * time.Second,
			PageSize:  50,
		},
		Session: SessionConfig{
			Backend:   "auto",
			Directory: filepath.Join(DataDir(), "sessions"),
		},
		Auth: AuthConfig{
			MaxLoginAttempts: 3,
			RetryBase:        30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			BaseMin:           3 * time.Second,
			BaseMax:           5 * time.Second,
			ShortBreakMin:     8 * time.Second,
			ShortBreakMax:     12 * time.Second,
			LongBreakMin:      25 * time.Second,
			LongBreakMax:      40 * time.Second,
			Modulus:           5,
			RandomizeModulus:  false,
			ModulusMin:        4,
			ModulusMax:        9,
			LongModulus:       20,
			Jitter:            true,
			JitterFactor:      0.2,
			AdditiveJitter:    500 * time.Millisecond,
			RequestsPerMinute: 30,
		},
		Retrieval: RetrievalConfig{
			MaxLikes:        100,
			MaxComments:     100,
			MaxRetries:      3,
			BackoffMin:      60 * time.Second,
			BackoffMax:      90 * time.Second,
			PhasePauseMin:   15 * time.Second,
			PhasePauseMax:   20 * time.Second,
			CheckpointDir:   filepath.Join(DataDir(), "checkpoints"),
			CheckpointPhase: true,
		},
		Output: OutputConfig{
			Directory:  ".",
			Format:     "xlsx",
			FilePrefix: "instagram_data",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DataDir returns the per-user data directory
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "igengage")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".igengage"
	}
	return filepath.Join(home, ".local", "share", "igengage")
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := env("ACCOUNT"); v != "" {
		c.Instagram.Account = v
	}
	if v := env("USER_AGENT"); v != "" {
		c.Instagram.UserAgent = v
	}
	if v := env("SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := env("SESSION_DIR"); v != "" {
		c.Session.Directory = v
	}
	if v := env("OUTPUT_DIR"); v != "" {
		c.Output.Directory = v
	}
	if v := env("OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := env("METRICS_FILE"); v != "" {
		c.Metrics.TextfilePath = v
	}

	intVars := map[string]*int{
		"MAX_LIKES":           &c.Retrieval.MaxLikes,
		"MAX_COMMENTS":        &c.Retrieval.MaxComments,
		"MAX_RETRIES":         &c.Retrieval.MaxRetries,
		"REQUESTS_PER_MINUTE": &c.RateLimit.RequestsPerMinute,
	}
	for name, dst := range intVars {
		v := env(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			continue
		}
		*dst = n
	}

	if v := env("TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Instagram.Timeout = d
		}
	}

	return errors.Join(errs...)
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".igengage.yaml",
		".igengage.yml",
		filepath.Join(home, ".config", "igengage", "config.yaml"),
		filepath.Join(home, ".igengage.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Instagram.Timeout <= 0 {
		errs = append(errs, errors.New("instagram timeout must be positive"))
	}
	if c.Instagram.BaseURL == "" {
		errs = append(errs, errors.New("instagram base URL is required"))
	}
	if c.Instagram.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}

	switch strings.ToLower(c.Session.Backend) {
	case "auto", "file", "keyring":
	default:
		errs = append(errs, fmt.Errorf("invalid session backend %q", c.Session.Backend))
	}
	if c.Session.Directory == "" {
		errs = append(errs, errors.New("session directory is required"))
	}

	if c.Auth.MaxLoginAttempts <= 0 {
		errs = append(errs, errors.New("max login attempts must be positive"))
	}
	if c.Auth.RetryBase < 0 {
		errs = append(errs, errors.New("login retry base cannot be negative"))
	}

	rl := c.RateLimit
	errs = append(errs, checkRange("base", rl.BaseMin, rl.BaseMax))
	errs = append(errs, checkRange("short break", rl.ShortBreakMin, rl.ShortBreakMax))
	errs = append(errs, checkRange("long break", rl.LongBreakMin, rl.LongBreakMax))
	if rl.Modulus <= 0 {
		errs = append(errs, errors.New("rate limit modulus must be positive"))
	}
	if rl.RandomizeModulus && (rl.ModulusMin <= 0 || rl.ModulusMax < rl.ModulusMin) {
		errs = append(errs, errors.New("randomized modulus range is invalid"))
	}
	if rl.LongModulus < 0 {
		errs = append(errs, errors.New("long modulus cannot be negative"))
	}
	if rl.JitterFactor < 0 || rl.JitterFactor >= 1 {
		errs = append(errs, errors.New("jitter factor must be in [0, 1)"))
	}
	if rl.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Retrieval.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	errs = append(errs, checkRange("retrieval backoff", c.Retrieval.BackoffMin, c.Retrieval.BackoffMax))
	errs = append(errs, checkRange("phase pause", c.Retrieval.PhasePauseMin, c.Retrieval.PhasePauseMax))

	switch strings.ToLower(c.Output.Format) {
	case "xlsx", "txt", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid output format %q", c.Output.Format))
	}
	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

func checkRange(name string, min, max time.Duration) error {
	if min < 0 {
		return fmt.Errorf("%s minimum cannot be negative", name)
	}
	if max < min {
		return fmt.Errorf("%s maximum must not be below minimum", name)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Instagram.Account = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["max-likes"].(int); ok {
		c.Retrieval.MaxLikes = v
	}
	if v, ok := flags["max-comments"].(int); ok {
		c.Retrieval.MaxComments = v
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.Retrieval.MaxRetries = v
	}
	if v, ok := flags["session-backend"].(string); ok && v != "" {
		c.Session.Backend = v
	}
	if v, ok := flags["metrics-file"].(string); ok && v != "" {
		c.Metrics.TextfilePath = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".igengage.env"))
	}

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
