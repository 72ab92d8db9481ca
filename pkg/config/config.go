// Package config provides configuration loading and validation for fuzzdash.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrMissingFeedURL       = errors.New("feed url must be set")
	ErrInvalidReconnectWait = errors.New("reconnect wait bounds must be positive and ordered")
	ErrInvalidStaleness     = errors.New("staleness threshold must be positive")
	ErrInvalidRefresh       = errors.New("dashboard refresh interval must be positive")
	ErrInvalidMetricsPort   = errors.New("invalid metrics port")
)

// Default configuration values.
const (
	defaultFeedURL     = "ws://localhost:8000/ws"
	defaultMetricsPort = 9090
	defaultOutputPath  = "fuzzdash.html"
	maxPort            = 65535
)

// Config holds all configuration for fuzzdash.
type Config struct {
	Feed      FeedConfig      `mapstructure:"feed"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// FeedConfig holds websocket feed configuration.
type FeedConfig struct {
	URL              string        `mapstructure:"url"`
	ReconnectMinWait time.Duration `mapstructure:"reconnect_min_wait"`
	ReconnectMaxWait time.Duration `mapstructure:"reconnect_max_wait"`
	RecordPath       string        `mapstructure:"record_path"`
}

// EngineConfig holds linearization engine configuration.
type EngineConfig struct {
	// StalenessThreshold is the age after which the newest admitted report
	// no longer counts as running activity.
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`

	// Checked enables full invariant re-checking after every mutation.
	// Intended for debugging; slows ingestion down considerably.
	Checked bool `mapstructure:"checked"`
}

// DashboardConfig holds HTML dashboard output configuration.
type DashboardConfig struct {
	OutputPath      string        `mapstructure:"output_path"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Title           string        `mapstructure:"title"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus scrape endpoint configuration.
type MetricsConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Enabled bool   `mapstructure:"enabled"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("fuzzdash")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/fuzzdash")
	}

	viperCfg.SetEnvPrefix("FUZZDASH")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Feed defaults.
	viperCfg.SetDefault("feed.url", defaultFeedURL)
	viperCfg.SetDefault("feed.reconnect_min_wait", "1s")
	viperCfg.SetDefault("feed.reconnect_max_wait", "30s")

	// Engine defaults.
	viperCfg.SetDefault("engine.staleness_threshold", "5m")
	viperCfg.SetDefault("engine.checked", false)

	// Dashboard defaults.
	viperCfg.SetDefault("dashboard.output_path", defaultOutputPath)
	viperCfg.SetDefault("dashboard.refresh_interval", "5s")
	viperCfg.SetDefault("dashboard.title", "fuzzdash")

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")

	// Metrics defaults.
	viperCfg.SetDefault("metrics.enabled", false)
	viperCfg.SetDefault("metrics.host", "127.0.0.1")
	viperCfg.SetDefault("metrics.port", defaultMetricsPort)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Feed.URL == "" {
		return ErrMissingFeedURL
	}

	if config.Feed.ReconnectMinWait <= 0 || config.Feed.ReconnectMaxWait < config.Feed.ReconnectMinWait {
		return fmt.Errorf("%w: min %s, max %s",
			ErrInvalidReconnectWait, config.Feed.ReconnectMinWait, config.Feed.ReconnectMaxWait)
	}

	if config.Engine.StalenessThreshold <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidStaleness, config.Engine.StalenessThreshold)
	}

	if config.Dashboard.RefreshInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRefresh, config.Dashboard.RefreshInterval)
	}

	if config.Metrics.Port <= 0 || config.Metrics.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidMetricsPort, config.Metrics.Port)
	}

	return nil
}
