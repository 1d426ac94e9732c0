// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Environment variables read by ApplyEnvOverrides.
const (
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvModel    = "OPENAI_MODEL"
	EnvBaseURL  = "OPENAI_BASE_URL"
	EnvLogLevel = "TERMLINE_LOG_LEVEL"
)

// ErrConfigMissing is returned when the API key is not set.
var ErrConfigMissing = errors.New(EnvAPIKey + " is not set")

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete termline configuration. It is built once
// at startup and not modified afterwards.
type Config struct {
	Model        string `toml:"model"`
	BaseURL      string `toml:"base_url"`
	SystemPrompt string `toml:"system_prompt"`

	// APIKey comes from the environment only.
	APIKey string `toml:"-"`

	Request RequestConfig `toml:"request"`
	UI      UIConfig      `toml:"ui"`
	History HistoryConfig `toml:"history"`
	Log     LogConfig     `toml:"log"`

	// path is the file the configuration was loaded from, if any.
	path string
}

// RequestConfig controls outgoing completion requests.
type RequestConfig struct {
	// Timeout bounds connecting and waiting for response headers.
	Timeout Duration `toml:"timeout"`
	// MaxRetries is how often a failed connection is retried (0 = never).
	MaxRetries int `toml:"max_retries"`
	// RequestsPerMinute limits request rate (0 = unlimited).
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// UIConfig contains the settings the config watcher may change at runtime.
type UIConfig struct {
	// Markdown is "off", "replace" or "conversation".
	Markdown string `toml:"markdown"`
	// WordWrap is the markdown wrap width.
	WordWrap int `toml:"word_wrap"`
	// Style is the glamour style: "auto", "dark", "light" or "notty".
	Style string `toml:"style"`
}

// HistoryConfig controls the transcript journal.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

// Duration is a time.Duration that decodes from strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:        "gpt-5",
		BaseURL:      "https://api.openai.com/v1",
		SystemPrompt: "You are a chat assistant living in my computer terminal. I am probably trying to get quick answers.",

		Request: RequestConfig{
			Timeout:           Duration{30 * time.Second},
			MaxRetries:        0,
			RequestsPerMinute: 0,
		},

		UI: DefaultUI(),

		History: HistoryConfig{
			Enabled: true,
			Path:    "~/.termline/history.db",
		},

		Log: LogConfig{
			Level: "info",
			Path:  "~/.termline/termline.log",
		},
	}
}

// DefaultUI returns the default UI settings.
func DefaultUI() UIConfig {
	return UIConfig{
		Markdown: "replace",
		WordWrap: 80,
		Style:    "auto",
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the termline configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".termline"), nil
}

// ConfigPathTOML returns the path to the default config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ExpandPath replaces a leading "~/" with the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Path returns the file the configuration was loaded from, or the path it
// would have been loaded from if the file did not exist.
func (c *Config) Path() string {
	return c.path
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads variables from a .env file in the working directory.
// Variables already set in the environment are left untouched. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, the config file and the
// environment, in that order of precedence. An empty path means the
// default location; a missing default file is not an error, but an
// explicitly named file must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPathTOML()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	cfg.path = path

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return fillDefaults(cfg)
}

// LoadUI reads only the [ui] section of a config file, with defaults for
// missing keys.
func LoadUI(path string) (UIConfig, error) {
	var file struct {
		UI UIConfig `toml:"ui"`
	}
	file.UI = DefaultUI()

	if _, err := toml.DecodeFile(path, &file); err != nil {
		return UIConfig{}, fmt.Errorf("failed to decode TOML file: %w", err)
	}
	ui := file.UI
	fillUIDefaults(&ui)

	if errs := ui.validate(); len(errs) > 0 {
		return UIConfig{}, errs
	}
	return ui, nil
}

// fillDefaults restores defaults for values a file set to empty.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaults.SystemPrompt
	}
	if cfg.Request.Timeout.Duration == 0 {
		cfg.Request.Timeout = defaults.Request.Timeout
	}
	fillUIDefaults(&cfg.UI)
	if cfg.History.Path == "" {
		cfg.History.Path = defaults.History.Path
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = defaults.Log.Path
	}
	return nil
}

func fillUIDefaults(ui *UIConfig) {
	defaults := DefaultUI()
	if ui.Markdown == "" {
		ui.Markdown = defaults.Markdown
	}
	if ui.WordWrap == 0 {
		ui.WordWrap = defaults.WordWrap
	}
	if ui.Style == "" {
		ui.Style = defaults.Style
	}
	ui.Markdown = strings.ToLower(strings.TrimSpace(ui.Markdown))
	ui.Style = strings.ToLower(strings.TrimSpace(ui.Style))
}

// SetDefaults normalizes values after loading: trims the base URL and
// expands "~" in paths.
func (c *Config) SetDefaults() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	c.History.Path = ExpandPath(c.History.Path)
	c.Log.Path = ExpandPath(c.Log.Path)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OPENAI_API_KEY: the API credential (never read from the file)
//   - OPENAI_MODEL: overrides model
//   - OPENAI_BASE_URL: overrides base_url
//   - TERMLINE_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.APIKey = key
	}
	if model := os.Getenv(EnvModel); model != "" {
		c.Model = model
	}
	if baseURL := os.Getenv(EnvBaseURL); baseURL != "" {
		c.BaseURL = baseURL
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}
}

// RequireAPIKey returns ErrConfigMissing if no API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrConfigMissing
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, ValidationError{Field: "model", Message: "must not be empty"})
	}

	if u, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "base_url", Message: fmt.Sprintf("invalid URL: %v", err)})
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{Field: "base_url", Message: fmt.Sprintf("must be an http(s) URL, got %q", c.BaseURL)})
	}

	if c.Request.Timeout.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "request.timeout", Message: "must be positive"})
	}
	if c.Request.MaxRetries < 0 || c.Request.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "request.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Request.MaxRetries),
		})
	}
	if c.Request.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "request.requests_per_minute", Message: "cannot be negative"})
	}

	errs = append(errs, c.UI.validate()...)

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, ValidationError{Field: "history.path", Message: "must be set when history is enabled"})
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (ui UIConfig) validate() ValidateErrors {
	var errs ValidateErrors

	switch ui.Markdown {
	case "off", "replace", "conversation":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.markdown",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: off, replace, conversation", ui.Markdown),
		})
	}

	if ui.WordWrap < 20 || ui.WordWrap > 500 {
		errs = append(errs, ValidationError{
			Field:   "ui.word_wrap",
			Message: fmt.Sprintf("must be 20-500, got %d", ui.WordWrap),
		})
	}

	switch ui.Style {
	case "auto", "dark", "light", "notty":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.style",
			Message: fmt.Sprintf("invalid style '%s', must be one of: auto, dark, light, notty", ui.Style),
		})
	}

	return errs
}

// String returns a printable summary with the API key redacted.
func (c *Config) String() string {
	key := "[not set]"
	if c.APIKey != "" {
		key = fmt.Sprintf("[REDACTED, length=%d]", len(c.APIKey))
	}
	return fmt.Sprintf("model=%s base_url=%s api_key=%s markdown=%s history=%t",
		c.Model, c.BaseURL, key, c.UI.Markdown, c.History.Enabled)
}
