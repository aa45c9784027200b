// Package config provides configuration management for Linkboard.
// Everything is driven by LINKBOARD_* environment variables, with an
// optional .env file for local development (never committed — it holds
// the dashboard password and the GitHub token).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	// Server
	Port int    // LINKBOARD_PORT (default: 8090)
	Host string // LINKBOARD_HOST (default: 0.0.0.0)

	// Security
	Password string        // LINKBOARD_PASSWORD (empty = dashboard is read-only)
	TokenTTL time.Duration // LINKBOARD_TOKEN_TTL (default: 12h)

	// Storage
	DataDir string // LINKBOARD_DATA_DIR (default: ./data) — holds cards.json
	LogDir  string // LINKBOARD_LOG_DIR (default: ./logs) — daily access logs

	// Server log (the app's own slog output, not the access log)
	ServerLogDir string // LINKBOARD_SERVER_LOG_DIR (optional — tee slog to a rotating file)
	LogFormat    string // LINKBOARD_LOG_FORMAT ("text" or "json", default: text)

	// Rate limiting for /api/verify-password
	RateLimit int    // LINKBOARD_RATE_LIMIT (attempts per minute, default: 10, 0 = off)
	RateAllow string // LINKBOARD_RATE_ALLOW (comma-separated IPs/CIDRs that bypass)

	// GitHub sync (token and repo must both be set for sync to be available)
	GitHubToken  string // LINKBOARD_GITHUB_TOKEN
	GitHubOwner  string // from LINKBOARD_GITHUB_REPO ("owner/repo")
	GitHubRepo   string
	GitHubBranch string // LINKBOARD_GITHUB_BRANCH (default: main)
	GitHubPath   string // LINKBOARD_GITHUB_PATH (default: cards.json)

	// Features
	EnableTLS bool // LINKBOARD_ENABLE_TLS (default: false — auto-generates self-signed cert)
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is loaded first if present;
// real environment variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	v := viper.New()
	v.SetEnvPrefix("LINKBOARD")
	v.AutomaticEnv()

	v.SetDefault("port", 8090)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("token_ttl", "12h")
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_format", "text")
	v.SetDefault("rate_limit", 10)
	v.SetDefault("github_branch", "main")
	v.SetDefault("github_path", "cards.json")

	cfg := &Config{
		Port:         v.GetInt("port"),
		Host:         v.GetString("host"),
		Password:     v.GetString("password"),
		TokenTTL:     v.GetDuration("token_ttl"),
		DataDir:      v.GetString("data_dir"),
		LogDir:       v.GetString("log_dir"),
		ServerLogDir: v.GetString("server_log_dir"),
		LogFormat:    v.GetString("log_format"),
		RateLimit:    v.GetInt("rate_limit"),
		RateAllow:    v.GetString("rate_allow"),
		GitHubToken:  v.GetString("github_token"),
		GitHubBranch: v.GetString("github_branch"),
		GitHubPath:   v.GetString("github_path"),
		EnableTLS:    v.GetBool("enable_tls"),
	}

	// Malformed values cast to zero; fall back to defaults instead.
	if cfg.Port <= 0 {
		cfg.Port = 8090
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 10
	}

	if repo := v.GetString("github_repo"); repo != "" {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" {
			return nil, fmt.Errorf("LINKBOARD_GITHUB_REPO must be \"owner/repo\", got %q", repo)
		}
		cfg.GitHubOwner = owner
		cfg.GitHubRepo = name
	}

	return cfg, nil
}

// ListenAddr returns the formatted listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SyncConfigured reports whether the GitHub sync target is fully specified.
func (c *Config) SyncConfigured() bool {
	return c.GitHubToken != "" && c.GitHubOwner != "" && c.GitHubRepo != ""
}
