package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/rules"
)

// DefaultDatabasePath is used when database.path is not configured.
const DefaultDatabasePath = "$HOME/.local/share/glrules/glrules.db"

// Config is the resolved application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Suggester SuggesterConfig `mapstructure:"suggester"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig configures the per-owner limiter. A non-positive rate
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RulesConfig holds evaluation thresholds and the snapshot cache TTL.
type RulesConfig struct {
	SuggestMinConfidence   float64       `mapstructure:"suggest_min_confidence"`
	AutoApplyMinConfidence float64       `mapstructure:"auto_apply_min_confidence"`
	CacheTTL               time.Duration `mapstructure:"cache_ttl"`
}

// Thresholds converts the configured values for the evaluator.
func (c RulesConfig) Thresholds() rules.Thresholds {
	return rules.Thresholds{
		SuggestMinConfidence:   c.SuggestMinConfidence,
		AutoApplyMinConfidence: c.AutoApplyMinConfidence,
	}
}

// SuggesterConfig configures the optional AI suggester.
type SuggesterConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	Enabled    bool          `mapstructure:"enabled"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rules.suggest_min_confidence", rules.DefaultSuggestMinConfidence)
	v.SetDefault("rules.auto_apply_min_confidence", rules.DefaultAutoApplyMinConfidence)
	v.SetDefault("rules.cache_ttl", 30*time.Second)
	v.SetDefault("suggester.enabled", false)
	v.SetDefault("suggester.model", "gpt-4o-mini")
	v.SetDefault("suggester.timeout", 30*time.Second)
	v.SetDefault("suggester.max_retries", 3)
}

// Load resolves the configuration from v, applying defaults and validating
// the result.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database.path is required", common.ErrMissingConfig)
	}
	if _, err := common.ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "text", "json", "":
	default:
		return fmt.Errorf("%w: invalid log format %q", common.ErrInvalidConfig, c.Logging.Format)
	}

	for name, v := range map[string]float64{
		"rules.suggest_min_confidence":    c.Rules.SuggestMinConfidence,
		"rules.auto_apply_min_confidence": c.Rules.AutoApplyMinConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %v", common.ErrInvalidConfig, name, v)
		}
	}
	if c.Rules.SuggestMinConfidence > c.Rules.AutoApplyMinConfidence {
		return fmt.Errorf("%w: rules.suggest_min_confidence must not exceed rules.auto_apply_min_confidence", common.ErrInvalidConfig)
	}
	if c.Rules.CacheTTL < 0 {
		return fmt.Errorf("%w: rules.cache_ttl must not be negative", common.ErrInvalidConfig)
	}

	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate_limit.burst must not be negative", common.ErrInvalidConfig)
	}

	if c.Suggester.Enabled && strings.TrimSpace(c.Suggester.APIKey) == "" {
		return fmt.Errorf("%w: suggester.api_key is required when the suggester is enabled", common.ErrMissingConfig)
	}
	return nil
}
