package config

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultUserAgent is sent by static sources that do not override it.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig             `yaml:"store" mapstructure:"store"`
	Scrape  ScrapeConfig            `yaml:"scrape" mapstructure:"scrape"`
	Sources map[string]SourceConfig `yaml:"sources" mapstructure:"sources" validate:"dive"`
	Log     LogConfig               `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Pool sizing, postgres only.
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	// ConnectAttempts bounds the startup ping retries, postgres only.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts" validate:"gte=0"`
}

// ScrapeConfig holds settings shared by every source lane.
type ScrapeConfig struct {
	Input                string  `yaml:"input" mapstructure:"input"`
	OutputDir            string  `yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
	CheckpointDir        string  `yaml:"checkpoint_dir" mapstructure:"checkpoint_dir" validate:"required"`
	SessionDir           string  `yaml:"session_dir" mapstructure:"session_dir" validate:"required"`
	FlushEvery           int     `yaml:"flush_every" mapstructure:"flush_every" validate:"gte=1"`
	PageCap              int     `yaml:"page_cap" mapstructure:"page_cap" validate:"gte=1"`
	FetchTimeoutSecs     int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs" validate:"gte=1"`
	UserAgent            string  `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	RetryFailed          bool    `yaml:"retry_failed" mapstructure:"retry_failed"`
	GlobalRPS            float64 `yaml:"global_rps" mapstructure:"global_rps" validate:"gte=0"`
	ExcerptCacheTTLHours int     `yaml:"excerpt_cache_ttl_hours" mapstructure:"excerpt_cache_ttl_hours" validate:"gte=0"`
}

// FetchTimeout returns the per-request timeout.
func (s ScrapeConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSecs) * time.Second
}

// ExcerptCacheTTL returns how long resolved excerpts are reused.
func (s ScrapeConfig) ExcerptCacheTTL() time.Duration {
	return time.Duration(s.ExcerptCacheTTLHours) * time.Hour
}

// SourceConfig configures one source lane. The map key names the lane;
// Adapter picks the implementation and defaults to the key.
type SourceConfig struct {
	Adapter       string `yaml:"adapter" mapstructure:"adapter"`
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	MinDelayMS    int    `yaml:"min_delay_ms" mapstructure:"min_delay_ms" validate:"gte=0"`
	MaxDelayMS    int    `yaml:"max_delay_ms" mapstructure:"max_delay_ms" validate:"gtefield=MinDelayMS"`
	PageCap       int    `yaml:"page_cap" mapstructure:"page_cap" validate:"gte=0"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	Relevance     bool   `yaml:"relevance" mapstructure:"relevance"`
	Render        bool   `yaml:"render" mapstructure:"render"`
	RespectRobots bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
	Scrolls       int    `yaml:"scrolls" mapstructure:"scrolls" validate:"gte=0"`
	ResultLimit   int    `yaml:"result_limit" mapstructure:"result_limit" validate:"gte=0"`
}

// Delays returns the rate-limit bounds.
func (s SourceConfig) Delays() (time.Duration, time.Duration) {
	return time.Duration(s.MinDelayMS) * time.Millisecond, time.Duration(s.MaxDelayMS) * time.Millisecond
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// EnabledSources returns the names of enabled lanes in sorted order.
func (c *Config) EnabledSources() []string {
	var names []string
	for name, sc := range c.Sources {
		if sc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Source returns the lane config with shared settings folded in.
func (c *Config) Source(name string) (SourceConfig, bool) {
	sc, ok := c.Sources[name]
	if !ok {
		return SourceConfig{}, false
	}
	if sc.Adapter == "" {
		sc.Adapter = name
	}
	if sc.PageCap == 0 {
		sc.PageCap = c.Scrape.PageCap
	}
	if sc.UserAgent == "" {
		sc.UserAgent = c.Scrape.UserAgent
	}
	return sc, true
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COVERAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "coverage.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.connect_attempts", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scrape.input", "founders_companies.json")
	v.SetDefault("scrape.output_dir", "results")
	v.SetDefault("scrape.checkpoint_dir", ".checkpoints")
	v.SetDefault("scrape.session_dir", ".sessions")
	v.SetDefault("scrape.flush_every", 2)
	v.SetDefault("scrape.page_cap", 1)
	v.SetDefault("scrape.fetch_timeout_secs", 30)
	v.SetDefault("scrape.user_agent", DefaultUserAgent)
	v.SetDefault("scrape.retry_failed", false)
	v.SetDefault("scrape.global_rps", 0)
	v.SetDefault("scrape.excerpt_cache_ttl_hours", 168)

	setSourceDefaults(v, "techcrunch", map[string]any{
		"enabled": true, "min_delay_ms": 1000, "max_delay_ms": 3000, "relevance": true,
	})
	setSourceDefaults(v, "factordaily", map[string]any{
		"enabled": true, "min_delay_ms": 1000, "max_delay_ms": 2000,
	})
	setSourceDefaults(v, "reddit", map[string]any{
		"enabled": true, "min_delay_ms": 2000, "max_delay_ms": 4000, "result_limit": 5,
		"user_agent": "coverage-cli/1.0",
	})
	setSourceDefaults(v, "yourstory", map[string]any{
		"enabled": false, "min_delay_ms": 5000, "max_delay_ms": 8000, "render": true, "scrolls": 3,
	})
	setSourceDefaults(v, "inc42", map[string]any{
		"enabled": false, "min_delay_ms": 500, "max_delay_ms": 1000, "render": true,
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setSourceDefaults(v *viper.Viper, name string, values map[string]any) {
	for k, val := range values {
		v.SetDefault("sources."+name+"."+k, val)
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
