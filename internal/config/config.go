package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Listing ListingConfig `yaml:"listing" mapstructure:"listing"`
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ScrapeConfig configures page fetching and the enrichment pipeline.
type ScrapeConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxConcurrent    int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	DelayMS          int     `yaml:"delay_ms" mapstructure:"delay_ms"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxRPS           float64 `yaml:"max_rps" mapstructure:"max_rps"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CheckpointEvery  int     `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
}

// Delay returns the per-worker politeness delay.
func (c ScrapeConfig) Delay() time.Duration { return time.Duration(c.DelayMS) * time.Millisecond }

// Timeout returns the per-request timeout.
func (c ScrapeConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// ListingConfig configures the year-bucket listing walk.
type ListingConfig struct {
	DelayMS int `yaml:"delay_ms" mapstructure:"delay_ms"`
	// Buckets restricts the walk to these labels. Empty means every year
	// offered by the site.
	Buckets []string `yaml:"buckets" mapstructure:"buckets"`
}

// Delay returns the pause between bucket requests.
func (c ListingConfig) Delay() time.Duration { return time.Duration(c.DelayMS) * time.Millisecond }

// DataConfig names the dataset files.
type DataConfig struct {
	BasicPath    string `yaml:"basic_path" mapstructure:"basic_path"`
	DetailedPath string `yaml:"detailed_path" mapstructure:"detailed_path"`
	ExportPath   string `yaml:"export_path" mapstructure:"export_path"`
}

// StoreConfig configures the run log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JERRYBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("scrape.base_url", "https://jerrybase.com/events")
	v.SetDefault("scrape.user_agent", "jerrybase-cli/1.0")
	v.SetDefault("scrape.max_concurrent", 10)
	v.SetDefault("scrape.delay_ms", 200)
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.max_attempts", 1)
	v.SetDefault("scrape.max_rps", 0)
	v.SetDefault("scrape.failure_threshold", 25)
	v.SetDefault("scrape.checkpoint_every", 50)
	v.SetDefault("listing.delay_ms", 500)
	v.SetDefault("listing.buckets", []string{})
	v.SetDefault("data.basic_path", "event_data.json")
	v.SetDefault("data.detailed_path", "event_data_detailed.json")
	v.SetDefault("data.export_path", "concert_data.xlsx")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "jerrybase.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks the settings a command needs before any work starts. mode
// is one of "listings", "enrich", "export", "runs" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "listings":
		if c.Scrape.BaseURL == "" {
			errs = append(errs, "scrape.base_url is required")
		}
		if c.Listing.DelayMS < 0 {
			errs = append(errs, "listing.delay_ms must be >= 0")
		}
		if c.Data.BasicPath == "" {
			errs = append(errs, "data.basic_path is required")
		}
	case "enrich":
		if c.Scrape.MaxConcurrent <= 0 {
			errs = append(errs, "scrape.max_concurrent must be > 0")
		}
		if c.Scrape.DelayMS < 0 {
			errs = append(errs, "scrape.delay_ms must be >= 0")
		}
		if c.Scrape.TimeoutSecs <= 0 {
			errs = append(errs, "scrape.timeout_secs must be > 0")
		}
		if c.Scrape.FailureThreshold < 0 {
			errs = append(errs, "scrape.failure_threshold must be >= 0")
		}
		if c.Scrape.CheckpointEvery < 0 {
			errs = append(errs, "scrape.checkpoint_every must be >= 0")
		}
		if c.Data.BasicPath == "" || c.Data.DetailedPath == "" {
			errs = append(errs, "data.basic_path and data.detailed_path are required")
		}
	case "export":
		if c.Data.ExportPath == "" {
			errs = append(errs, "data.export_path is required")
		}
	case "runs":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
