package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Narrative  NarrativeConfig  `yaml:"narrative" mapstructure:"narrative"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Analytics  AnalyticsConfig  `yaml:"analytics" mapstructure:"analytics"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the tabular store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the narrative collaborator.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// NarrativeConfig bounds the text-generation collaborator. The pipeline never
// blocks on it: timeouts and schema violations fall back to templated prose.
type NarrativeConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RowLimit          int     `yaml:"row_limit" mapstructure:"row_limit"`
}

// ValidationConfig configures the validator stage.
type ValidationConfig struct {
	// DuplicatePolicy is "keep_first" or "keep_latest" for rows sharing the
	// same (student_id, subject, exam_id, attempt_number, exam_date) key.
	DuplicatePolicy string `yaml:"duplicate_policy" mapstructure:"duplicate_policy"`
	MinGrade        int    `yaml:"min_grade" mapstructure:"min_grade"`
	MaxGrade        int    `yaml:"max_grade" mapstructure:"max_grade"`
}

// AnalyticsConfig configures the subject analyzer stage.
type AnalyticsConfig struct {
	// ThresholdsFile optionally overrides the built-in band/risk/confidence
	// cut points with a YAML file.
	ThresholdsFile string `yaml:"thresholds_file" mapstructure:"thresholds_file"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	MaxConcurrentStudents int `yaml:"max_concurrent_students" mapstructure:"max_concurrent_students"`
}

// ImportConfig configures raw record ingestion.
type ImportConfig struct {
	FTPTimeoutSecs int `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// ServerConfig configures the HTTP read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background health checker run by the
// serve command.
type MonitoringConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackRuns        int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	RejectRateThreshold float64 `yaml:"reject_rate_threshold" mapstructure:"reject_rate_threshold"`
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetEnvPrefix("EXAMINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "exam-intel.db")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("narrative.enabled", true)
	v.SetDefault("narrative.timeout_secs", 20)
	v.SetDefault("narrative.max_retries", 2)
	v.SetDefault("narrative.requests_per_second", 1.0)
	v.SetDefault("narrative.row_limit", 0)
	v.SetDefault("validation.duplicate_policy", "keep_first")
	v.SetDefault("validation.min_grade", 1)
	v.SetDefault("validation.max_grade", 12)
	v.SetDefault("pipeline.max_concurrent_students", 4)
	v.SetDefault("import.ftp_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_runs", 10)
	v.SetDefault("monitoring.reject_rate_threshold", 0.2)
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
