// Package config loads the settings shared by the server and the CLI.
//
// Values are layered, later layers winning:
//
//  1. Default()
//  2. an optional TOML file (path from CONFIG_PATH or --config)
//  3. environment variables (see envBindings)
//
// Secrets normally arrive through the environment (or a .env file the
// binaries load with godotenv) so the TOML file can be committed.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sakif/commit-streak/internal/fetcher"
	"github.com/sakif/commit-streak/internal/github"
	"github.com/sakif/commit-streak/internal/service"
)

type Config struct {
	Server   ServerConfig           `toml:"server"`
	Database DatabaseConfig         `toml:"database"`
	Auth     AuthConfig             `toml:"auth"`
	GitHub   github.Config          `toml:"github"`
	Fetcher  fetcher.Config         `toml:"fetcher"`
	Activity service.ActivityConfig `toml:"activity"`
}

type ServerConfig struct {
	Port           int           `toml:"port"`
	RequestTimeout time.Duration `toml:"request_timeout"` // per-request deadline for API routes
	LogLevel       string        `toml:"log_level"`       // debug, info, warn, error
	SecureCookies  bool          `toml:"secure_cookies"`  // set behind HTTPS
}

type DatabaseConfig struct {
	Path string `toml:"path"` // ":memory:" for a throwaway database
}

// AuthConfig holds the OAuth App registration and the two server secrets.
//
// JWTSecret signs session cookies. CredentialSecret derives the key that
// seals stored GitHub tokens; rotating it makes every stored token
// unreadable and users must sign in again.
type AuthConfig struct {
	JWTSecret          string        `toml:"jwt_secret"`
	CredentialSecret   string        `toml:"credential_secret"`
	SessionTTL         time.Duration `toml:"session_ttl"`
	GitHubClientID     string        `toml:"github_client_id"`
	GitHubClientSecret string        `toml:"github_client_secret"`
	GitHubCallbackURL  string        `toml:"github_callback_url"`
}

// OAuthEnabled reports whether the GitHub sign-in routes can be served.
func (a AuthConfig) OAuthEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 60 * time.Second,
			LogLevel:       "info",
		},
		Database: DatabaseConfig{Path: "data/streak.db"},
		Auth:     AuthConfig{SessionTTL: 24 * time.Hour},
		GitHub:   github.DefaultConfig(),
		Fetcher:  fetcher.Config{Concurrency: 4},
		Activity: service.DefaultActivityConfig(),
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is non-empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	// A misspelt key would otherwise be silently ignored.
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// envBindings maps environment variables onto config fields.
var envBindings = []struct {
	key string
	set func(c *Config, v string) error
}{
	{"PORT", func(c *Config, v string) error { return setInt(&c.Server.Port, v) }},
	{"REQUEST_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Server.RequestTimeout, v) }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Server.LogLevel = v; return nil }},
	{"SECURE_COOKIES", func(c *Config, v string) error { return setBool(&c.Server.SecureCookies, v) }},
	{"DB_PATH", func(c *Config, v string) error { c.Database.Path = v; return nil }},
	{"JWT_SECRET", func(c *Config, v string) error { c.Auth.JWTSecret = v; return nil }},
	{"CREDENTIAL_SECRET", func(c *Config, v string) error { c.Auth.CredentialSecret = v; return nil }},
	{"SESSION_TTL", func(c *Config, v string) error { return setDuration(&c.Auth.SessionTTL, v) }},
	{"GITHUB_CLIENT_ID", func(c *Config, v string) error { c.Auth.GitHubClientID = v; return nil }},
	{"GITHUB_CLIENT_SECRET", func(c *Config, v string) error { c.Auth.GitHubClientSecret = v; return nil }},
	{"GITHUB_CALLBACK_URL", func(c *Config, v string) error { c.Auth.GitHubCallbackURL = v; return nil }},
	{"GITHUB_API_URL", func(c *Config, v string) error { c.GitHub.BaseURL = v; return nil }},
	{"FETCH_CONCURRENCY", func(c *Config, v string) error { return setInt(&c.Fetcher.Concurrency, v) }},
	{"REFRESH_INTERVAL", func(c *Config, v string) error { return setDuration(&c.Activity.RefreshInterval, v) }},
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("config: %s: %w", b.key, err)
		}
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Validate checks ranges. Secrets are checked by the components that use
// them, since the CLI needs fewer of them than the server.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: request_timeout must be positive")
	}
	if _, err := c.Server.Level(); err != nil {
		return err
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database path is required")
	}
	if c.Fetcher.Concurrency < 0 {
		return fmt.Errorf("config: fetch concurrency must not be negative")
	}
	return nil
}

// Level parses LogLevel for slog.
func (s ServerConfig) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", s.LogLevel, err)
	}
	return lvl, nil
}
