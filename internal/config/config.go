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
	History    HistoryConfig   `yaml:"history" mapstructure:"history"`
	Pipeline   PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Audit      AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Validation ValidateConfig  `yaml:"validate" mapstructure:"validate"`
	Normalize  NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Ingest     IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Render     RenderConfig    `yaml:"render" mapstructure:"render"`
	Notify     NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// HistoryConfig configures the fingerprint history backend.
type HistoryConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PipelineConfig configures grouping and change detection.
type PipelineConfig struct {
	ForceRegeneration       bool   `yaml:"force_regeneration" mapstructure:"force_regeneration"`
	WeekEndingWeekday       string `yaml:"week_ending_weekday" mapstructure:"week_ending_weekday"`
	ExtendedChangeDetection bool   `yaml:"extended_change_detection" mapstructure:"extended_change_detection"`
	Workers                 int    `yaml:"workers" mapstructure:"workers"`
}

// AuditConfig configures anomaly detection thresholds.
type AuditConfig struct {
	PriceVarianceThreshold float64 `yaml:"price_variance_threshold" mapstructure:"price_variance_threshold"`
	HighSeverityThreshold  float64 `yaml:"high_severity_threshold" mapstructure:"high_severity_threshold"`
	HighRiskAnomalyCount   int     `yaml:"high_risk_anomaly_count" mapstructure:"high_risk_anomaly_count"`
}

// ValidateConfig configures row validation.
type ValidateConfig struct {
	PlaceholderCU string `yaml:"placeholder_cu" mapstructure:"placeholder_cu"`
}

// NormalizeConfig configures header canonicalization.
type NormalizeConfig struct {
	SynonymsFile string `yaml:"synonyms_file" mapstructure:"synonyms_file"`
}

// IngestConfig configures sheet readers and the FTP puller. Inputs holds the
// standing source list (file paths or ftp:// URLs) used when a run or webhook
// request does not name its own.
type IngestConfig struct {
	Inputs         []string `yaml:"inputs" mapstructure:"inputs"`
	SheetName      string   `yaml:"sheet_name" mapstructure:"sheet_name"`
	SkipRows       int      `yaml:"skip_rows" mapstructure:"skip_rows"`
	Charset        string   `yaml:"charset" mapstructure:"charset"`
	FTPTimeoutSecs int      `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	FTPRatePerSec  int      `yaml:"ftp_rate_per_sec" mapstructure:"ftp_rate_per_sec"`
}

// RenderConfig configures artifact output.
type RenderConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// NotifyConfig configures the audit webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinRisk    string `yaml:"min_risk" mapstructure:"min_risk"`
}

// ServerConfig configures the webhook server.
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
	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.database_url", "billing.db")
	v.SetDefault("pipeline.force_regeneration", false)
	v.SetDefault("pipeline.week_ending_weekday", "sunday")
	v.SetDefault("pipeline.extended_change_detection", false)
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("audit.price_variance_threshold", 0.5)
	v.SetDefault("audit.high_severity_threshold", 0.75)
	v.SetDefault("audit.high_risk_anomaly_count", 10)
	v.SetDefault("validate.placeholder_cu", "NO CU MATCH FOUND")
	v.SetDefault("normalize.synonyms_file", "")
	v.SetDefault("ingest.inputs", []string{})
	v.SetDefault("ingest.sheet_name", "")
	v.SetDefault("ingest.skip_rows", 0)
	v.SetDefault("ingest.charset", "")
	v.SetDefault("ingest.ftp_timeout_secs", 30)
	v.SetDefault("ingest.ftp_rate_per_sec", 2)
	v.SetDefault("render.output_dir", "artifacts")
	v.SetDefault("notify.min_risk", "HIGH")
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

// weekdays maps lowercase weekday names to time.Weekday.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday resolves a weekday name, case-insensitively.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return time.Sunday, eris.Errorf("config: unknown weekday %q", name)
	}
	return d, nil
}

// Validate checks the configuration for the given command mode. Every
// violation is reported in one error; nothing opens the store first.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "run", "serve", "audit", "history":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var problems []string

	if _, err := ParseWeekday(c.Pipeline.WeekEndingWeekday); err != nil {
		problems = append(problems, fmt.Sprintf("pipeline.week_ending_weekday %q is not a weekday", c.Pipeline.WeekEndingWeekday))
	}
	if c.Pipeline.Workers < 0 || c.Pipeline.Workers > 64 {
		problems = append(problems, "pipeline.workers must be between 0 and 64")
	}
	if c.Audit.PriceVarianceThreshold < 0 || c.Audit.PriceVarianceThreshold > 1 {
		problems = append(problems, "audit.price_variance_threshold must be in [0, 1]")
	}
	if c.Audit.HighSeverityThreshold < 0 || c.Audit.HighSeverityThreshold > 1 {
		problems = append(problems, "audit.high_severity_threshold must be in [0, 1]")
	}
	if c.Audit.HighRiskAnomalyCount < 1 {
		problems = append(problems, "audit.high_risk_anomaly_count must be >= 1")
	}

	switch c.History.Driver {
	case "sqlite", "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("history.driver %q is not one of sqlite, postgres, memory", c.History.Driver))
	}
	if c.History.Driver == "postgres" && c.History.DatabaseURL == "" {
		problems = append(problems, "history.database_url is required for the postgres driver")
	}

	switch c.Notify.MinRisk {
	case "", "LOW", "MEDIUM", "HIGH":
	default:
		problems = append(problems, fmt.Sprintf("notify.min_risk %q is not one of LOW, MEDIUM, HIGH", c.Notify.MinRisk))
	}

	if mode == "run" || mode == "serve" {
		if c.Render.OutputDir == "" {
			problems = append(problems, "render.output_dir is required")
		}
	}
	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
