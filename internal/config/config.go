// Package config handles TOML/YAML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/miniapp-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are route prefixes the metrics endpoint must not shadow.
var reservedRoutes = []string{"/api", "/healthz", "/proxy"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	APIURL   string `kong:"name='api-url',help='Upstream habit API base URL (overrides config).',env='API_URL'"`
	BotToken string `kong:"help='Telegram bot token for init-data checks (overrides config).',env='TELEGRAM_BOT_TOKEN'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Upstream  UpstreamConfig  `toml:"upstream" yaml:"upstream"`
	Telegram  TelegramConfig  `toml:"telegram" yaml:"telegram"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Exchanges ExchangesConfig `toml:"exchanges" yaml:"exchanges"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `toml:"host" yaml:"host"`
	Port      int             `toml:"port" yaml:"port"` // 0 means "use default" (8000)
	BodyMax   string          `toml:"body_max" yaml:"body_max"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	CORS      CORSConfig      `toml:"cors" yaml:"cors"`

	bodyMaxBytes int64
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// CORSConfig lists origins allowed to call the proxy from a browser.
type CORSConfig struct {
	AllowOrigins []string `toml:"allow_origins" yaml:"allow_origins"`
}

// UpstreamConfig holds upstream connection settings.
// An empty BaseURL is allowed: every proxied request then fails with 502.
type UpstreamConfig struct {
	BaseURL            string `toml:"base_url" yaml:"base_url"`
	TimeoutSeconds     int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	IdleConnections    int    `toml:"idle_connections" yaml:"idle_connections"`
	DefaultContentType string `toml:"default_content_type" yaml:"default_content_type"`
}

// TelegramConfig controls verification of Mini App init data.
type TelegramConfig struct {
	BotToken        string `toml:"bot_token" yaml:"bot_token"`
	RequireInitData bool   `toml:"require_init_data" yaml:"require_init_data"`
	MaxAgeSeconds   int    `toml:"max_age_seconds" yaml:"max_age_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// ExchangesConfig controls the in-memory (optionally SQLite-backed) log of
// proxied exchanges.
type ExchangesConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	BufferSize int    `toml:"buffer_size" yaml:"buffer_size"`
	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`
	AdminToken string `toml:"admin_token" yaml:"admin_token"`
}

// Load reads the config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/miniapp-proxy/config.toml then configs/config.toml. Unlike an explicit
// path, a missing search-path file is not an error: the proxy runs from
// flags and environment alone.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// decode picks the decoder from the file extension; TOML is the default.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.APIURL != "" {
		c.Upstream.BaseURL = cli.APIURL
	}
	if cli.BotToken != "" {
		c.Telegram.BotToken = cli.BotToken
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil {
			return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("upstream.base_url must be an absolute http(s) URL; got %q", c.Upstream.BaseURL)
		}
		if u.Host == "" {
			return fmt.Errorf("upstream.base_url has no host; got %q", c.Upstream.BaseURL)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMax != "" {
		n, err := humanize.ParseBytes(c.Server.BodyMax)
		if err != nil {
			return fmt.Errorf("server.body_max is not a byte size: %w", err)
		}
		c.Server.bodyMaxBytes = int64(n)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if c.Telegram.RequireInitData && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram.require_init_data is enabled")
	}
	if c.Telegram.MaxAgeSeconds < 0 {
		return fmt.Errorf("telegram.max_age_seconds must be non-negative; got %d", c.Telegram.MaxAgeSeconds)
	}
	if c.Exchanges.BufferSize < 0 {
		return fmt.Errorf("exchanges.buffer_size must be non-negative; got %d", c.Exchanges.BufferSize)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because neither TOML nor YAML decoding
// distinguishes an explicit 0 from an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.bodyMaxBytes == 0 {
		c.Server.bodyMaxBytes = 10 * 1000 * 1000
	}
	if c.Server.BodyMax == "" {
		c.Server.BodyMax = humanize.Bytes(uint64(c.Server.bodyMaxBytes))
	}
	if len(c.Server.CORS.AllowOrigins) == 0 {
		c.Server.CORS.AllowOrigins = []string{"*"}
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.DefaultContentType == "" {
		c.Upstream.DefaultContentType = "application/json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Exchanges.BufferSize == 0 {
		c.Exchanges.BufferSize = 200
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BodyMaxBytes returns the parsed server.body_max limit.
func (c *ServerConfig) BodyMaxBytes() int64 {
	return c.bodyMaxBytes
}

// Configured reports whether a base URL is set.
func (c *UpstreamConfig) Configured() bool {
	return c.BaseURL != ""
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may carry the bot token and exchange admin token.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// WarnUpstream logs a warning when no upstream base URL is configured.
func (c *Config) WarnUpstream(logger *slog.Logger) {
	if !c.Upstream.Configured() {
		logger.Warn("upstream.base_url is not set; /api requests will fail with 502 until API_URL is configured")
	}
}
