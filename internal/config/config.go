// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Qredence/qlaw-cli/internal/util"
)

// =============================================================================
// CONFIGURATION TYPES
// =============================================================================

// Config is the complete qlaw configuration. It is loaded once at startup
// and passed explicitly to the components that need it; nothing below the
// CLI layer reads the environment.
type Config struct {
	// Version for config migration
	Version string `toml:"version" json:"version"`

	Backend BackendConfig `toml:"backend" json:"backend"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	History HistoryConfig `toml:"history" json:"history"`
}

// BackendConfig describes the bridge deployment to talk to.
type BackendConfig struct {
	// BaseURL is the bridge root, e.g. "http://localhost:8081". A full
	// completion URL (Azure style) also works; it is used verbatim.
	BaseURL string `toml:"base_url" json:"base_url"`

	// APIKey authenticates against the bridge. The header scheme is
	// chosen from the URL (api-key for Azure-hosted endpoints, bearer
	// otherwise).
	APIKey string `toml:"api_key" json:"api_key"`

	// Entity is the model name or workflow id requests are addressed to.
	Entity string `toml:"entity" json:"entity"`

	// Mode selects "standard" single-turn completions or "workflow" runs.
	Mode string `toml:"mode" json:"mode"`

	// RateLimit caps outbound requests per second. 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`

	// FrameLog, when set, appends every raw SSE frame to this file for
	// protocol debugging.
	FrameLog string `toml:"frame_log" json:"frame_log"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is "dark", "light", or "auto"
	Theme string `toml:"theme" json:"theme"`
	// ShowStats displays per-message timing/token estimates
	ShowStats bool `toml:"show_stats" json:"show_stats"`
	// Markdown renders finished assistant messages through glamour
	Markdown bool `toml:"markdown" json:"markdown"`
	// CompactMode tightens the layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
}

// HistoryConfig controls local session persistence.
type HistoryConfig struct {
	// Enabled toggles saving finished sessions
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path overrides the database location (default ~/.qlaw/history.db)
	Path string `toml:"path" json:"path"`
	// MaxSessions prunes the oldest sessions beyond this count (0 = keep all)
	MaxSessions int `toml:"max_sessions" json:"max_sessions"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			BaseURL:   "http://localhost:8081",
			Entity:    "agent",
			Mode:      ModeStandard,
			RateLimit: 0,
		},

		UI: UIConfig{
			Theme:     "dark",
			ShowStats: true,
			Markdown:  true,
		},

		History: HistoryConfig{
			Enabled:     true,
			MaxSessions: 200,
		},
	}
}

// Recognized backend modes.
const (
	ModeStandard = "standard"
	ModeWorkflow = "workflow"
)

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the qlaw configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".qlaw"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// HistoryPath resolves the session database location.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions fixes permissions on config files. The config
// holds the API key, so it should be owner read/write only.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		return os.Chmod(path, 0600)
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads ~/.qlaw/config.toml, falling back to defaults when the file
// is absent. Environment overrides are applied last, then validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with env
// overrides and validation applied.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to ~/.qlaw/config.toml with owner-only
// permissions. The write is atomic so a crash cannot truncate the file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to an explicit path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# qlaw configuration file")
	fmt.Fprintln(&buf, "# Generated by qlaw - edit with care")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()
	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaults.Backend.BaseURL
	}
	if c.Backend.Entity == "" {
		c.Backend.Entity = defaults.Backend.Entity
	}
	if c.Backend.Mode == "" {
		c.Backend.Mode = defaults.Backend.Mode
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.History.MaxSessions == 0 {
		c.History.MaxSessions = defaults.History.MaxSessions
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides layers QLAW_* environment variables over the loaded
// values. Called once at load time; components never read these directly.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("QLAW_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("QLAW_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("QLAW_ENTITY"); v != "" {
		c.Backend.Entity = v
	}
	if v := os.Getenv("QLAW_MODE"); v != "" {
		c.Backend.Mode = strings.ToLower(v)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates all validation failures.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.BaseURL == "" {
		errs = append(errs, ValidationError{"backend.base_url", "must not be empty"})
	} else if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		errs = append(errs, ValidationError{"backend.base_url", "must start with http:// or https://"})
	}

	switch c.Backend.Mode {
	case ModeStandard, ModeWorkflow:
	default:
		errs = append(errs, ValidationError{"backend.mode", `must be "standard" or "workflow"`})
	}

	if c.Backend.RateLimit < 0 {
		errs = append(errs, ValidationError{"backend.rate_limit", "must not be negative"})
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{"ui.theme", `must be "dark", "light", or "auto"`})
	}

	if c.History.MaxSessions < 0 {
		errs = append(errs, ValidationError{"history.max_sessions", "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
