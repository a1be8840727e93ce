// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/autologout-tui/internal/session"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete autologout configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Session countdown behavior on the client
	Session SessionConfig `toml:"session" json:"session"`

	// Session authority server
	Server ServerConfig `toml:"server" json:"server"`

	// Client connection settings
	Client ClientConfig `toml:"client" json:"client"`

	Log LogConfig `toml:"log" json:"log"`

	UI UIConfig `toml:"ui" json:"ui"`
}

// SessionConfig controls the client-side countdown.
type SessionConfig struct {
	// WarningLeadSecs is how long before expiry the warning appears (default: 180)
	WarningLeadSecs int `toml:"warning_lead_secs" json:"warning_lead_secs"`
	// Policy selects which traffic counts as activity: "all" or "user"
	Policy string `toml:"policy" json:"policy"`
	// LogoutPath is the navigation target on expiry
	LogoutPath string `toml:"logout_path" json:"logout_path"`
	// KeepAlivePath is the endpoint hit when the warning is acknowledged
	KeepAlivePath string `toml:"keepalive_path" json:"keepalive_path"`
	// KeepAliveMinIntervalSecs spaces explicit keep-alive refreshes; acknowledge is never throttled
	KeepAliveMinIntervalSecs int `toml:"keepalive_min_interval_secs" json:"keepalive_min_interval_secs"`
}

// ServerConfig contains session server configuration.
type ServerConfig struct {
	// Addr is the listen address
	Addr string `toml:"addr" json:"addr"`
	// SessionTimeoutSecs is the sliding server-side session lifetime (default: 1800)
	SessionTimeoutSecs int `toml:"session_timeout_secs" json:"session_timeout_secs"`
	// CookieName is the session cookie
	CookieName string `toml:"cookie_name" json:"cookie_name"`
	// ShutdownTimeoutSecs bounds graceful shutdown
	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs" json:"shutdown_timeout_secs"`
}

// ClientConfig contains settings for the console and shell hosts.
type ClientConfig struct {
	// ServerURL is the base URL of the session server
	ServerURL string `toml:"server_url" json:"server_url"`
	// User is the name sent on login (default: $USER)
	User string `toml:"user" json:"user"`
	// RequestTimeoutSecs bounds every HTTP exchange
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
	// PollIntervalSecs is the background poll period; 0 disables polling
	PollIntervalSecs int `toml:"poll_interval_secs" json:"poll_interval_secs"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	// Path is the log file for terminal hosts; empty means ~/.autologout/autologout.log
	Path string `toml:"path" json:"path"`
}

// UIConfig contains console appearance settings.
type UIConfig struct {
	// Theme is "auto", "dark" or "light"
	Theme string `toml:"theme" json:"theme"`
	// ShowStatusBar toggles the bottom status line
	ShowStatusBar bool `toml:"show_status_bar" json:"show_status_bar"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Session: SessionConfig{
			WarningLeadSecs:          180,
			Policy:                   "all",
			LogoutPath:               "/auth/logout",
			KeepAlivePath:            "/rest/keepalive",
			KeepAliveMinIntervalSecs: 10,
		},

		Server: ServerConfig{
			Addr:                "127.0.0.1:8790",
			SessionTimeoutSecs:  1800,
			CookieName:          "autologout_session",
			ShutdownTimeoutSecs: 10,
		},

		Client: ClientConfig{
			ServerURL:          "http://127.0.0.1:8790",
			RequestTimeoutSecs: 10,
			PollIntervalSecs:   60,
		},

		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},

		UI: UIConfig{
			Theme:         "auto",
			ShowStatusBar: true,
		},
	}
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Session
	if cfg.Session.WarningLeadSecs == 0 {
		cfg.Session.WarningLeadSecs = defaults.Session.WarningLeadSecs
	}
	if cfg.Session.Policy == "" {
		cfg.Session.Policy = defaults.Session.Policy
	}
	if cfg.Session.LogoutPath == "" {
		cfg.Session.LogoutPath = defaults.Session.LogoutPath
	}
	if cfg.Session.KeepAlivePath == "" {
		cfg.Session.KeepAlivePath = defaults.Session.KeepAlivePath
	}

	// Server
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.SessionTimeoutSecs == 0 {
		cfg.Server.SessionTimeoutSecs = defaults.Server.SessionTimeoutSecs
	}
	if cfg.Server.CookieName == "" {
		cfg.Server.CookieName = defaults.Server.CookieName
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = defaults.Server.ShutdownTimeoutSecs
	}

	// Client
	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = defaults.Client.ServerURL
	}
	if cfg.Client.RequestTimeoutSecs == 0 {
		cfg.Client.RequestTimeoutSecs = defaults.Client.RequestTimeoutSecs
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// WarningLead returns the warning lead as a duration.
func (s SessionConfig) WarningLead() time.Duration {
	return time.Duration(s.WarningLeadSecs) * time.Second
}

// KeepAliveMinInterval returns the keep-alive spacing as a duration.
func (s SessionConfig) KeepAliveMinInterval() time.Duration {
	return time.Duration(s.KeepAliveMinIntervalSecs) * time.Second
}

// ActivityPolicy parses the configured policy.
func (s SessionConfig) ActivityPolicy() session.ActivityPolicy {
	p, _ := session.ParseActivityPolicy(s.Policy)
	return p
}

// SessionTimeout returns the server session lifetime as a duration.
func (s ServerConfig) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutSecs) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// RequestTimeout returns the per-request bound.
func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// PollInterval returns the background poll period, 0 when disabled.
func (c ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("AUTOLOGOUT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".autologout"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultLogPath returns where terminal hosts write their log.
func DefaultLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "autologout.log"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg and fills defaults.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	// Zero and false are meaningful for these, so only absent keys get defaults.
	defaults := Default()
	if !md.IsDefined("ui", "show_status_bar") {
		cfg.UI.ShowStatusBar = defaults.UI.ShowStatusBar
	}
	if !md.IsDefined("session", "keepalive_min_interval_secs") {
		cfg.Session.KeepAliveMinIntervalSecs = defaults.Session.KeepAliveMinIntervalSecs
	}
	if !md.IsDefined("client", "poll_interval_secs") {
		cfg.Client.PollIntervalSecs = defaults.Client.PollIntervalSecs
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file into cfg and fills defaults.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	defaults := Default()
	cfg.UI.ShowStatusBar = defaults.UI.ShowStatusBar
	cfg.Session.KeepAliveMinIntervalSecs = defaults.Session.KeepAliveMinIntervalSecs
	cfg.Client.PollIntervalSecs = defaults.Client.PollIntervalSecs
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# autologout configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Session.WarningLeadSecs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.warning_lead_secs",
			Message: "must be positive",
		})
	}
	if _, err := session.ParseActivityPolicy(c.Session.Policy); err != nil {
		errs = append(errs, ValidationError{Field: "session.policy", Message: err.Error()})
	}
	for field, path := range map[string]string{
		"session.logout_path":    c.Session.LogoutPath,
		"session.keepalive_path": c.Session.KeepAlivePath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("path %q must start with /", path),
			})
		}
	}
	if c.Session.KeepAliveMinIntervalSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.keepalive_min_interval_secs",
			Message: "cannot be negative",
		})
	}

	if c.Server.SessionTimeoutSecs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.session_timeout_secs",
			Message: "must be positive",
		})
	}
	if c.Server.ShutdownTimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.shutdown_timeout_secs",
			Message: "cannot be negative",
		})
	}

	if u, err := url.Parse(c.Client.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "client.server_url",
			Message: fmt.Sprintf("invalid URL %q: must be http(s)://host[:port]", c.Client.ServerURL),
		})
	}
	if c.Client.RequestTimeoutSecs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "client.request_timeout_secs",
			Message: "must be positive",
		})
	}
	if c.Client.PollIntervalSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "client.poll_interval_secs",
			Message: "cannot be negative",
		})
	}

	validThemes := map[string]bool{"auto": true, "dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateServer runs Validate plus the checks that only matter when this
// process is the session server. Clients take the timeout from the login
// response instead.
func (c *Config) ValidateServer() error {
	var errs ValidateErrors
	if err := c.Validate(); err != nil {
		if !errors.As(err, &errs) {
			return err
		}
	}
	if c.Server.SessionTimeoutSecs <= c.Session.WarningLeadSecs {
		errs = append(errs, ValidationError{
			Field: "server.session_timeout_secs",
			Message: fmt.Sprintf("must exceed session.warning_lead_secs (%d), got %d",
				c.Session.WarningLeadSecs, c.Server.SessionTimeoutSecs),
		})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - AUTOLOGOUT_SERVER_URL: overrides client.server_url
//   - AUTOLOGOUT_USER: overrides client.user
//   - AUTOLOGOUT_ADDR: overrides server.addr
//   - AUTOLOGOUT_SESSION_TIMEOUT: overrides server.session_timeout_secs
//   - AUTOLOGOUT_WARNING_LEAD: overrides session.warning_lead_secs
//   - AUTOLOGOUT_ACTIVITY_POLICY: overrides session.policy
//   - AUTOLOGOUT_LOG_LEVEL: overrides log.level
//   - AUTOLOGOUT_LOG_PATH: overrides log.path
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AUTOLOGOUT_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("AUTOLOGOUT_USER"); v != "" {
		c.Client.User = v
	}
	if v := os.Getenv("AUTOLOGOUT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AUTOLOGOUT_SESSION_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Server.SessionTimeoutSecs = secs
		}
	}
	if v := os.Getenv("AUTOLOGOUT_WARNING_LEAD"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Session.WarningLeadSecs = secs
		}
	}
	if v := os.Getenv("AUTOLOGOUT_ACTIVITY_POLICY"); v != "" {
		c.Session.Policy = v
	}
	if v := os.Getenv("AUTOLOGOUT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("AUTOLOGOUT_LOG_PATH"); v != "" {
		c.Log.Path = v
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

// TOML returns the configuration encoded as TOML.
func (c *Config) TOML() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.String(), nil
}

// String returns the TOML form, or the error text if encoding fails.
func (c *Config) String() string {
	s, err := c.TOML()
	if err != nil {
		return err.Error()
	}
	return s
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ReloadGlobal reloads configuration from disk and replaces the global
// instance. The previous config stays in effect on error.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
