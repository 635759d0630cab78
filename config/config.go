// Package config loads and validates the watcher configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Detection DetectionConfig `mapstructure:"detection"`
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Discord   DiscordConfig   `mapstructure:"discord"`
}

// DetectionConfig holds thresholds for all detection rules.
type DetectionConfig struct {
	// Low history detector
	LargeTradeUSD       float64 `mapstructure:"large_trade_usd"`
	LowHistoryThreshold int     `mapstructure:"low_history_threshold"`
	CacheTTLHours       int     `mapstructure:"cache_ttl_hours"`

	// Concentrated betting detector
	MinVolumeUSD              float64 `mapstructure:"min_volume_usd"`
	MaxTradesForConcentration int     `mapstructure:"max_trades_for_concentration"`
	MinAvgTradeUSD            float64 `mapstructure:"min_avg_trade_usd"`

	// Profitable trader detector
	MinTradesForAnalysis   int     `mapstructure:"min_trades_for_analysis"`
	MinProfitFactor        float64 `mapstructure:"min_profit_factor"`
	MinWinRate             float64 `mapstructure:"min_win_rate"`
	HighFrequencyThreshold float64 `mapstructure:"high_frequency_threshold"`
}

// APIConfig holds Polymarket endpoint configuration.
type APIConfig struct {
	DataAPIURL   string        `mapstructure:"data_api_url"`
	WebSocketURL string        `mapstructure:"websocket_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AlertsConfig holds alert log output configuration.
type AlertsConfig struct {
	File          string `mapstructure:"file"`
	MaxFileSizeMB int    `mapstructure:"max_file_size_mb"`
	BackupCount   int    `mapstructure:"backup_count"`
}

// LoggingConfig holds application logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DiscordConfig holds the optional Discord alert channel.
// Alerts go to the log file regardless; Discord is additive.
type DiscordConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

// CacheTTL returns the wallet cache TTL as a duration.
func (d DetectionConfig) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLHours) * time.Hour
}

// Load reads configuration from the given file path with environment
// variable overrides (POLYWATCH_ prefix). A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POLYWATCH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("detection.large_trade_usd", 20000.0)
	v.SetDefault("detection.low_history_threshold", 10)
	v.SetDefault("detection.cache_ttl_hours", 24)

	v.SetDefault("detection.min_volume_usd", 10000.0)
	v.SetDefault("detection.max_trades_for_concentration", 25)
	v.SetDefault("detection.min_avg_trade_usd", 1000.0)

	v.SetDefault("detection.min_trades_for_analysis", 50)
	v.SetDefault("detection.min_profit_factor", 2.0)
	v.SetDefault("detection.min_win_rate", 0.65)
	v.SetDefault("detection.high_frequency_threshold", 100)

	v.SetDefault("api.data_api_url", "https://data-api.polymarket.com")
	v.SetDefault("api.websocket_url", "wss://ws-live-data.polymarket.com")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("database.path", "data/polywatch.db")

	v.SetDefault("alerts.file", "logs/alerts.log")
	v.SetDefault("alerts.max_file_size_mb", 10)
	v.SetDefault("alerts.backup_count", 5)

	v.SetDefault("logging.level", "info")
}

// Validate checks the configuration for values that would make the
// detectors misbehave silently.
func (c *Config) Validate() error {
	if c.Detection.LargeTradeUSD <= 0 {
		return fmt.Errorf("detection.large_trade_usd must be positive, got %v", c.Detection.LargeTradeUSD)
	}
	if c.Detection.LowHistoryThreshold <= 0 {
		return fmt.Errorf("detection.low_history_threshold must be positive, got %d", c.Detection.LowHistoryThreshold)
	}
	if c.Detection.CacheTTLHours <= 0 {
		return fmt.Errorf("detection.cache_ttl_hours must be positive, got %d", c.Detection.CacheTTLHours)
	}
	if c.Detection.MinWinRate < 0 || c.Detection.MinWinRate > 1 {
		return fmt.Errorf("detection.min_win_rate must be in [0,1], got %v", c.Detection.MinWinRate)
	}
	if c.Detection.MinTradesForAnalysis <= 0 {
		return fmt.Errorf("detection.min_trades_for_analysis must be positive, got %d", c.Detection.MinTradesForAnalysis)
	}
	if c.Detection.MaxTradesForConcentration <= 0 {
		return fmt.Errorf("detection.max_trades_for_concentration must be positive, got %d", c.Detection.MaxTradesForConcentration)
	}
	if c.API.DataAPIURL == "" {
		return fmt.Errorf("api.data_api_url must not be empty")
	}
	if c.API.WebSocketURL == "" {
		return fmt.Errorf("api.websocket_url must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Discord.BotToken != "" && c.Discord.ChannelID == "" {
		return fmt.Errorf("discord.channel_id required when discord.bot_token is set")
	}
	return nil
}
