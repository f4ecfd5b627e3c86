package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// FetchConfig configures the SARB web-indicator fetcher.
type FetchConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// AnthropicConfig holds Anthropic API settings for the insight annotator.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures run behavior.
type PipelineConfig struct {
	Name          string   `yaml:"name" mapstructure:"name"`
	RollingWindow int      `yaml:"rolling_window" mapstructure:"rolling_window"`
	SkipStages    []string `yaml:"skip_stages" mapstructure:"skip_stages"`

	// SourceConfidence maps a data source name to a confidence weight in
	// [0,1] for its validated records. Unlisted sources default to 1.0.
	SourceConfidence map[string]float64 `yaml:"source_confidence" mapstructure:"source_confidence"`
}

// ScoringConfig hoists every business threshold the reporting projector
// consumes. Nothing here is hardcoded in the projector itself.
type ScoringConfig struct {
	// Policy stance bands on the prime rate.
	StanceAccommodativeBelow float64 `yaml:"stance_accommodative_below" mapstructure:"stance_accommodative_below"`
	StanceRestrictiveAbove   float64 `yaml:"stance_restrictive_above" mapstructure:"stance_restrictive_above"`

	// Inflation target band midpoint, used for health and risk scoring.
	InflationTargetMid float64 `yaml:"inflation_target_mid" mapstructure:"inflation_target_mid"`

	// Health score: base + gdp*GDPWeight - |inflation-mid|*InflationWeight
	// - (unemployment-UnemploymentOffset)*UnemploymentWeight +/- PMIBonus,
	// clamped to [0,100].
	HealthBase         float64 `yaml:"health_base" mapstructure:"health_base"`
	GDPWeight          float64 `yaml:"gdp_weight" mapstructure:"gdp_weight"`
	InflationWeight    float64 `yaml:"inflation_weight" mapstructure:"inflation_weight"`
	UnemploymentWeight float64 `yaml:"unemployment_weight" mapstructure:"unemployment_weight"`
	UnemploymentOffset float64 `yaml:"unemployment_offset" mapstructure:"unemployment_offset"`
	PMIExpansion       float64 `yaml:"pmi_expansion" mapstructure:"pmi_expansion"`
	PMIBonus           float64 `yaml:"pmi_bonus" mapstructure:"pmi_bonus"`

	// Risk buckets on |inflation - target midpoint|.
	RiskMediumAbove float64 `yaml:"risk_medium_above" mapstructure:"risk_medium_above"`
	RiskHighAbove   float64 `yaml:"risk_high_above" mapstructure:"risk_high_above"`
}

// ServerConfig configures the read-only JSON API server.
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
	v.SetEnvPrefix("ECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "econ.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.base_url", "https://custom.resbank.co.za/SarbWebApi/WebIndicators")
	v.SetDefault("fetch.user_agent", "econ-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("pipeline.name", "sarb_indicators")
	v.SetDefault("pipeline.rolling_window", 4)
	v.SetDefault("scoring.stance_accommodative_below", 8.0)
	v.SetDefault("scoring.stance_restrictive_above", 10.0)
	v.SetDefault("scoring.inflation_target_mid", 4.5)
	v.SetDefault("scoring.health_base", 50.0)
	v.SetDefault("scoring.gdp_weight", 8.0)
	v.SetDefault("scoring.inflation_weight", 4.0)
	v.SetDefault("scoring.unemployment_weight", 0.8)
	v.SetDefault("scoring.unemployment_offset", 20.0)
	v.SetDefault("scoring.pmi_expansion", 50.0)
	v.SetDefault("scoring.pmi_bonus", 5.0)
	v.SetDefault("scoring.risk_medium_above", 1.5)
	v.SetDefault("scoring.risk_high_above", 3.0)

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

// Validate checks that the fields a command mode needs are present and sane.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "pipeline":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Pipeline.RollingWindow < 1 {
			problems = append(problems, "pipeline.rolling_window must be >= 1")
		}
		for source, w := range c.Pipeline.SourceConfidence {
			if w < 0 || w > 1 {
				problems = append(problems, fmt.Sprintf("pipeline.source_confidence[%s] must be in [0,1]", source))
			}
		}
	case "serve":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
