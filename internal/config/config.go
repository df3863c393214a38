package config

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Agreement AgreementConfig `yaml:"agreement" mapstructure:"agreement"`
	Upload    UploadConfig    `yaml:"upload" mapstructure:"upload"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for explanation enrichment.
// An empty key selects the template explainer.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	ImpactMaxTokens   int64   `yaml:"impact_max_tokens" mapstructure:"impact_max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	FailureThreshold  int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

// ReferenceConfig locates the reference data files.
type ReferenceConfig struct {
	ManufacturersPath string   `yaml:"manufacturers_path" mapstructure:"manufacturers_path"`
	RulesPaths        []string `yaml:"rules_paths" mapstructure:"rules_paths"`
	HSCodesPath       string   `yaml:"hs_codes_path" mapstructure:"hs_codes_path"`
}

// AgreementConfig names the trade agreement and its critical heading.
type AgreementConfig struct {
	Name            string `yaml:"name" mapstructure:"name"`
	CriticalHeading string `yaml:"critical_heading" mapstructure:"critical_heading"`
}

// UploadConfig bounds uploaded costing sheets.
type UploadConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	MaxBytes int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentCases int `yaml:"max_concurrent_cases" mapstructure:"max_concurrent_cases"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("ORIGIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "origin.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 800)
	v.SetDefault("anthropic.impact_max_tokens", 400)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("anthropic.failure_threshold", 5)
	v.SetDefault("reference.manufacturers_path", "data/manufacturers.csv")
	v.SetDefault("reference.rules_paths", []string{"data/agreement.json", "data/fta_rules.json"})
	v.SetDefault("reference.hs_codes_path", "data/hs_codes.json")
	v.SetDefault("agreement.name", "EU-Vietnam FTA")
	v.SetDefault("agreement.critical_heading", "6406")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_bytes", 16<<20)
	v.SetDefault("batch.max_concurrent_cases", 4)
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

var headingPattern = regexp.MustCompile(`^\d{2,4}$`)

// Validate checks the settings a command mode depends on. Modes are
// "analyze", "batch", "serve" and "lookup".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if !headingPattern.MatchString(c.Agreement.CriticalHeading) {
		errs = append(errs, "agreement.critical_heading must be 2 to 4 digits")
	}
	if c.Anthropic.Key != "" && c.Anthropic.MaxTokens <= 0 {
		errs = append(errs, "anthropic.max_tokens must be > 0")
	}

	switch mode {
	case "analyze", "lookup":
	case "batch":
		if c.Batch.MaxConcurrentCases < 1 || c.Batch.MaxConcurrentCases > 32 {
			errs = append(errs, "batch.max_concurrent_cases must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Upload.MaxBytes <= 0 {
			errs = append(errs, "upload.max_bytes must be > 0")
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
