// Package config handles configuration loading for CryptoPulse.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Refresh  RefreshConfig  `mapstructure:"refresh"  yaml:"refresh"`
	View     ViewConfig     `mapstructure:"view"     yaml:"view"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	News     NewsConfig     `mapstructure:"news"     yaml:"news"`
	Prefs    PrefsConfig    `mapstructure:"prefs"    yaml:"prefs"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// ProviderConfig holds market data provider settings.
type ProviderConfig struct {
	BaseURL       string `mapstructure:"base_url"           yaml:"base_url"`
	Limit         int    `mapstructure:"limit"              yaml:"limit"`           // tickers to request
	MaxAttempts   int    `mapstructure:"max_attempts"       yaml:"max_attempts"`    // per logical fetch
	BackoffBaseMs int    `mapstructure:"backoff_base_ms"    yaml:"backoff_base_ms"` // doubles each retry
	RatePerSec    int    `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
}

// RefreshConfig holds auto-refresh and UI timing settings.
type RefreshConfig struct {
	IntervalSec      int `mapstructure:"interval_sec"       yaml:"interval_sec"`
	SearchDebounceMs int `mapstructure:"search_debounce_ms" yaml:"search_debounce_ms"`
	BannerSuccessSec int `mapstructure:"banner_success_sec" yaml:"banner_success_sec"`
}

// ViewConfig holds dashboard view defaults.
type ViewConfig struct {
	ItemsPerPage int    `mapstructure:"items_per_page" yaml:"items_per_page"`
	DefaultMode  string `mapstructure:"default_mode"   yaml:"default_mode"` // "table" or "card"
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// NewsConfig holds the market-news feed settings.
type NewsConfig struct {
	Sources     []string `mapstructure:"sources"       yaml:"sources"` // RSS URLs
	Limit       int      `mapstructure:"limit"         yaml:"limit"`
	CacheTTLSec int      `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
}

// PrefsConfig holds user preference storage settings.
type PrefsConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // empty: user config dir
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.cryptopulse/config.yaml (home directory)
//  3. /etc/cryptopulse/config.yaml (system)
//
// Environment variables override config file values.
// Format: CRYPTOPULSE_<SECTION>_<KEY>, e.g., CRYPTOPULSE_API_PORT
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".cryptopulse"))
	v.AddConfigPath("/etc/cryptopulse")

	v.SetEnvPrefix("CRYPTOPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("CRYPTOPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// SlogLevel converts the configured level string to a slog.Level.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("provider.base_url", "https://api.coinlore.net")
	v.SetDefault("provider.limit", 100)
	v.SetDefault("provider.max_attempts", 5)
	v.SetDefault("provider.backoff_base_ms", 500)
	v.SetDefault("provider.rate_limit_per_sec", 5)

	// Refresh defaults
	v.SetDefault("refresh.interval_sec", 60)
	v.SetDefault("refresh.search_debounce_ms", 300)
	v.SetDefault("refresh.banner_success_sec", 5)

	// View defaults
	v.SetDefault("view.items_per_page", 10)
	v.SetDefault("view.default_mode", "table")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8087)
	v.SetDefault("api.cors_origins", []string{})

	// News defaults
	v.SetDefault("news.sources", []string{
		"https://cointelegraph.com/rss",
		"https://www.coindesk.com/arc/outboundfeeds/rss/",
	})
	v.SetDefault("news.limit", 20)
	v.SetDefault("news.cache_ttl_sec", 600)

	// Prefs defaults
	v.SetDefault("prefs.path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
