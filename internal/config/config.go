package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/wiki"
)

// Config holds all configuration for pimdoc.
type Config struct {
	DatabaseURL string        `mapstructure:"database_url"`
	LogLevel    string        `mapstructure:"log_level"`
	Renderer    string        `mapstructure:"renderer"`
	Publish     PublishConfig `mapstructure:"publish"`
	Lock        LockConfig    `mapstructure:"lock"`
	Display     DisplayConfig `mapstructure:"display"`
	Server      ServerConfig  `mapstructure:"server"`
	Wiki        WikiConfig    `mapstructure:"wiki"`
}

// PublishConfig holds wiki client tuning.
type PublishConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	UpdateAttempts int           `mapstructure:"update_attempts"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PageSize       int           `mapstructure:"page_size"`
}

// LockConfig enables the Redis title lock when RedisURL is set.
type LockConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DisplayConfig selects which entity fields appear in tables.
type DisplayConfig struct {
	PriorityFields []string `mapstructure:"priority_fields"`
	SkipFields     []string `mapstructure:"skip_fields"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// WikiConfig is the fallback wiki location for servers without a stored
// configuration.
type WikiConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Username   string `mapstructure:"username"`
	APIToken   string `mapstructure:"api_token"`
	SpaceKey   string `mapstructure:"space_key"`
	ParentPage string `mapstructure:"parent_page"`
}

// Fallback returns the wiki config, if one is configured.
func (w WikiConfig) Fallback() (*wiki.Config, bool) {
	if w.BaseURL == "" || w.SpaceKey == "" {
		return nil, false
	}
	return &wiki.Config{
		BaseURL:    w.BaseURL,
		Username:   w.Username,
		APIToken:   w.APIToken,
		SpaceKey:   w.SpaceKey,
		ParentPage: w.ParentPage,
	}, true
}

// Extractor builds the property extractor for the display settings.
func (d DisplayConfig) Extractor() *diff.Extractor {
	return &diff.Extractor{Priority: d.PriorityFields, Skip: d.SkipFields}
}

// Load reads configuration from file, environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("renderer", "storage")
	v.SetDefault("publish.concurrency", 4)
	v.SetDefault("publish.update_attempts", 3)
	v.SetDefault("publish.rate_limit", 5.0)
	v.SetDefault("publish.timeout", "30s")
	v.SetDefault("publish.page_size", 25)
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("display.priority_fields", diff.DefaultPriorityFields)
	v.SetDefault("display.skip_fields", diff.DefaultSkipFields)
	v.SetDefault("server.addr", ":8080")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/pimdoc")
	}

	// Environment variables
	v.SetEnvPrefix("PIMDOC")
	v.AutomaticEnv()

	// Bind specific env vars
	_ = v.BindEnv("database_url", "PIMDOC_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("lock.redis_url", "PIMDOC_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("wiki.base_url", "PIMDOC_WIKI_BASE_URL", "CONFLUENCE_URL")
	_ = v.BindEnv("wiki.username", "PIMDOC_WIKI_USERNAME", "CONFLUENCE_EMAIL")
	_ = v.BindEnv("wiki.api_token", "PIMDOC_WIKI_API_TOKEN", "CONFLUENCE_API_TOKEN")
	_ = v.BindEnv("wiki.space_key", "PIMDOC_WIKI_SPACE_KEY", "CONFLUENCE_SPACE_KEY")
	_ = v.BindEnv("wiki.parent_page", "PIMDOC_WIKI_PARENT_PAGE", "CONFLUENCE_PARENT_PAGE")
	_ = v.BindEnv("publish.concurrency", "PIMDOC_PUBLISH_CONCURRENCY")
	_ = v.BindEnv("publish.rate_limit", "PIMDOC_PUBLISH_RATE_LIMIT")
	_ = v.BindEnv("server.addr", "PIMDOC_SERVER_ADDR")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Publish.Concurrency < 1 {
		return nil, fmt.Errorf("publish.concurrency must be at least 1, got %d", cfg.Publish.Concurrency)
	}
	if cfg.Publish.UpdateAttempts < 1 {
		return nil, fmt.Errorf("publish.update_attempts must be at least 1, got %d", cfg.Publish.UpdateAttempts)
	}

	return &cfg, nil
}
