// Package config handles pocketbench configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tOgg1/pocketbench/internal/models"
)

// Config is the root configuration structure for pocketbench.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Server is the remote benchmark service.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Run holds default run settings used until the operator saves their own.
	Run RunConfig `yaml:"run" mapstructure:"run"`

	// Journal is the local run journal database.
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where pocketbench stores its data (default: ~/.local/share/pocketbench).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/pocketbench).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`

	// SettingsPath is the saved run settings file (default: DataDir/settings.json).
	SettingsPath string `yaml:"settings_path" mapstructure:"settings_path"`
}

// ServerConfig describes how to reach the benchmark service.
type ServerConfig struct {
	// URL is the base URL of the service.
	URL string `yaml:"url" mapstructure:"url"`

	// RequestTimeout bounds non-streaming requests. Zero disables the bound.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// StreamIdleTimeout ends a run stream that has been silent this long.
	// Zero waits forever.
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout" mapstructure:"stream_idle_timeout"`

	// CancelOnStop aborts the local stream transfer when the operator stops a run.
	CancelOnStop bool `yaml:"cancel_on_stop" mapstructure:"cancel_on_stop"`
}

// RunConfig contains default run settings.
type RunConfig struct {
	Device    string `yaml:"device" mapstructure:"device"`
	BatchSize string `yaml:"batch_size" mapstructure:"batch_size"`
	Verbosity string `yaml:"verbosity" mapstructure:"verbosity"`
}

// Settings converts the run defaults into models.Settings.
func (r RunConfig) Settings() models.Settings {
	return models.Settings{Device: r.Device, BatchSize: r.BatchSize, Verbosity: r.Verbosity}
}

// JournalConfig contains run journal settings.
type JournalConfig struct {
	// Enabled turns run recording on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite file (default: DataDir/journal.db).
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeoutMs is how long to wait for a locked database.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The console writes here while it owns the terminal.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains console settings.
type TUIConfig struct {
	// RefreshInterval is how often the console redraws while a run streams.
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`

	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	defaults := models.DefaultSettings()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "pocketbench"),
			ConfigDir: filepath.Join(homeDir, ".config", "pocketbench"),
		},
		Server: ServerConfig{
			URL:            "http://localhost:5000",
			RequestTimeout: 30 * time.Second,
		},
		Run: RunConfig{
			Device:    defaults.Device,
			BatchSize: defaults.BatchSize,
			Verbosity: defaults.Verbosity,
		},
		Journal: JournalConfig{
			Enabled:       true,
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		TUI: TUIConfig{
			RefreshInterval: 250 * time.Millisecond,
			Theme:           "default",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validation := &models.ValidationErrors{}

	if strings.TrimSpace(c.Server.URL) == "" {
		validation.AddMessage("server.url", "is required")
	} else if u, err := url.Parse(c.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
		validation.AddMessage("server.url", fmt.Sprintf("must be an absolute http(s) URL, got %q", c.Server.URL))
	}
	if c.Server.RequestTimeout < 0 {
		validation.AddMessage("server.request_timeout", "must not be negative")
	}
	if c.Server.StreamIdleTimeout < 0 {
		validation.AddMessage("server.stream_idle_timeout", "must not be negative")
	}
	validation.Add("run", c.Run.Settings().Validate())
	validation.Add("logging.format", models.OneOf(c.Logging.Format, "console", "json"))
	if c.TUI.RefreshInterval < 50*time.Millisecond {
		validation.AddMessage("tui.refresh_interval", "must be at least 50ms")
	}

	return validation.Err()
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the full journal database path.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Global.DataDir, "journal.db")
}

// SettingsPath returns the saved settings file path.
func (c *Config) SettingsPath() string {
	if c.Global.SettingsPath != "" {
		return c.Global.SettingsPath
	}
	return filepath.Join(c.Global.DataDir, "settings.json")
}
