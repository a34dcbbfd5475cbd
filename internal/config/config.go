// Package config loads boardsync settings from a YAML file, environment
// variables, and built-in defaults, in ascending precedence of default <
// file < environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the CLI and daemon need to talk to a server.
type Config struct {
	// ServerURL is the HTTP base of the backend, e.g. http://localhost:5000
	ServerURL string `mapstructure:"server_url"`

	// Email and Password open the session for non-interactive commands.
	// Usually supplied via BOARDSYNC_EMAIL / BOARDSYNC_PASSWORD.
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`

	// SocketURL is the websocket endpoint. Empty derives it from ServerURL.
	SocketURL string `mapstructure:"socket_url"`

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RefreshInterval is how often the daemon revalidates stale cache keys.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// MirrorPath is the SQLite file for the offline board mirror.
	// Empty disables mirroring.
	MirrorPath string `mapstructure:"mirror_path"`

	// RecentEmailsPath backs the invitation email completions.
	RecentEmailsPath string `mapstructure:"recent_emails_path"`

	// LogFile, when set, routes daemon logs to a rotating file instead of
	// stderr.
	LogFile string `mapstructure:"log_file"`

	// NoColor disables styled terminal output.
	NoColor bool `mapstructure:"no_color"`
}

// DefaultDir returns the per-user config directory.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "boardsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".boardsync")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:5000")
	v.SetDefault("email", "")
	v.SetDefault("password", "")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("refresh_interval", 30*time.Second)
	v.SetDefault("recent_emails_path", filepath.Join(DefaultDir(), "recent-emails.json"))
}

// Load reads configuration. path names an explicit YAML file; empty falls
// back to config.yaml under DefaultDir, and a missing default file is not an
// error. Environment variables use the BOARDSYNC_ prefix, e.g.
// BOARDSYNC_SERVER_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("boardsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values and fills derivable ones.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %v", c.RefreshInterval)
	}
	if c.SocketURL == "" {
		c.SocketURL = deriveSocketURL(c.ServerURL)
	}
	return nil
}

// deriveSocketURL swaps the HTTP scheme for the websocket one.
func deriveSocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://") + "/ws"
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://") + "/ws"
	default:
		return serverURL + "/ws"
	}
}
