package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Amazon     AmazonConfig     `yaml:"amazon" mapstructure:"amazon"`
	Ebay       EbayConfig       `yaml:"ebay" mapstructure:"ebay"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AmazonConfig holds Amazon product search API settings. An empty Key means
// the provider is not configured and is skipped by the acquisition selector.
type AmazonConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// EbayConfig holds eBay browse API settings.
type EbayConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds Anthropic API settings for the AI estimation and
// content generation paths.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures background phase execution.
type PipelineConfig struct {
	// StepInterval is the delay between simulated progress increments
	// while a phase runs in the background.
	StepInterval time.Duration `yaml:"step_interval" mapstructure:"step_interval"`
	// ProgressStep is the percentage added per increment.
	ProgressStep int `yaml:"progress_step" mapstructure:"progress_step"`
	// MaxConcurrentRuns bounds simultaneously running background pipelines.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	// PhaseTimeout bounds a single phase's external work.
	PhaseTimeout time.Duration `yaml:"phase_timeout" mapstructure:"phase_timeout"`
}

// ResearchConfig configures the market data acquisition selector.
type ResearchConfig struct {
	// MaxConcurrentCalls bounds concurrent per-platform provider queries.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls" mapstructure:"max_concurrent_calls"`
	// MaxListingsPerPlatform caps listings kept per platform.
	MaxListingsPerPlatform int `yaml:"max_listings_per_platform" mapstructure:"max_listings_per_platform"`
	// RetryAttempts is the bounded retry count for provider and AI calls.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// MonitoringConfig configures metrics collection and alerting.
type MonitoringConfig struct {
	FailRateWarn     float64       `yaml:"fail_rate_warn" mapstructure:"fail_rate_warn"`
	DLQDepthWarn     int           `yaml:"dlq_depth_warn" mapstructure:"dlq_depth_warn"`
	StuckProductWarn int           `yaml:"stuck_product_warn" mapstructure:"stuck_product_warn"`
	CheckInterval    time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	SweepInterval    time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	WebhookURL       string        `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WISEBUY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so AutomaticEnv binds them; viper
	// only consults the environment for keys it knows about.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("amazon.key", "")
	v.SetDefault("ebay.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("amazon.base_url", "https://api.rainforestapi.com")
	v.SetDefault("amazon.rate_per_sec", 2)
	v.SetDefault("ebay.base_url", "https://api.ebay.com/buy/browse/v1")
	v.SetDefault("ebay.rate_per_sec", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("pipeline.step_interval", "500ms")
	v.SetDefault("pipeline.progress_step", 20)
	v.SetDefault("pipeline.max_concurrent_runs", 10)
	v.SetDefault("pipeline.phase_timeout", "120s")
	v.SetDefault("research.max_concurrent_calls", 3)
	v.SetDefault("research.max_listings_per_platform", 10)
	v.SetDefault("research.retry_attempts", 3)
	v.SetDefault("monitoring.fail_rate_warn", 0.25)
	v.SetDefault("monitoring.dlq_depth_warn", 20)
	v.SetDefault("monitoring.stuck_product_warn", 10)
	v.SetDefault("monitoring.check_interval", "5m")
	v.SetDefault("monitoring.sweep_interval", "5m")

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

// Validate checks that the configuration is sufficient for the given mode.
// Missing marketplace credentials are tolerated (the selector falls back to
// AI estimation), but there must be at least one viable acquisition path.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "serve", "pipeline":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
		if c.Amazon.Key == "" && c.Ebay.Key == "" && c.Anthropic.Key == "" {
			return eris.New("config: no marketplace credentials and no anthropic key; market research has no available path")
		}
	}
	return nil
}

// MarketplaceConfigured reports whether at least one real marketplace
// provider credential is present. This drives the real-vs-AI data policy.
func (c *Config) MarketplaceConfigured() bool {
	return c.Amazon.Key != "" || c.Ebay.Key != ""
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
