// Package config loads doc-intake settings from config.yaml, .env and the
// environment.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Template   TemplateConfig   `yaml:"template" mapstructure:"template"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Claude API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	VisionModel       string  `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host         string `yaml:"host" mapstructure:"host"`
	Port         int    `yaml:"port" mapstructure:"port"`
	Username     string `yaml:"username" mapstructure:"username"`
	Password     string `yaml:"password" mapstructure:"password"`
	Sender       string `yaml:"sender" mapstructure:"sender"`
	SSL          bool   `yaml:"ssl" mapstructure:"ssl"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DefaultAlias string `yaml:"default_alias" mapstructure:"default_alias"`
}

// Registry sources.
const (
	RegistrySourceBuiltin = "builtin"
	RegistrySourceFile    = "file"
	RegistrySourceXLSX    = "xlsx"
	RegistrySourceNotion  = "notion"
)

// RegistryConfig selects where known clients and their contacts come from.
type RegistryConfig struct {
	Source           string `yaml:"source" mapstructure:"source"`
	Path             string `yaml:"path" mapstructure:"path"`
	Sheet            string `yaml:"sheet" mapstructure:"sheet"`
	NotionDatabaseID string `yaml:"notion_database_id" mapstructure:"notion_database_id"`
}

// NotionConfig holds Notion API credentials.
type NotionConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
}

// TemplateConfig points at the notification template file. Empty means the
// built-in template.
type TemplateConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig tunes the extraction graph.
type PipelineConfig struct {
	CallTimeoutSecs   int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	VisionConcurrency int     `yaml:"vision_concurrency" mapstructure:"vision_concurrency"`
	PreviewLength     int     `yaml:"preview_length" mapstructure:"preview_length"`
	PDFDPI            float64 `yaml:"pdf_dpi" mapstructure:"pdf_dpi"`
	MaxImageEdge      int     `yaml:"max_image_edge" mapstructure:"max_image_edge"`
	MaxPartMB         int     `yaml:"max_part_mb" mapstructure:"max_part_mb"`
}

// RetryConfig configures retries and circuit breaking for outbound calls.
type RetryConfig struct {
	MaxAttempts             int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AuditConfig controls the per-run stage dumps.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold      float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	EmailFailureRateThreshold float64 `yaml:"email_failure_rate_threshold" mapstructure:"email_failure_rate_threshold"`
	CostThresholdUSD          float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours       int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envAliases maps config keys to the plain variable names older deployments
// set. The prefixed INTAKE_ name is tried first.
var envAliases = map[string]string{
	"anthropic.api_key": "ANTHROPIC_API_KEY",
	"smtp.sender":       "EMAIL_SENDER",
	"smtp.password":     "EMAIL_PASSWORD",
	"smtp.host":         "SMTP_SERVER",
	"smtp.port":         "SMTP_PORT",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range envAliases {
		prefixed := "INTAKE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

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

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.requests_per_second", 2.0)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.sender", "")
	v.SetDefault("smtp.ssl", true)
	v.SetDefault("smtp.timeout_secs", 30)
	v.SetDefault("smtp.default_alias", "AI Agent")

	v.SetDefault("registry.source", RegistrySourceBuiltin)
	v.SetDefault("registry.path", "")
	v.SetDefault("registry.sheet", "")
	v.SetDefault("registry.notion_database_id", "")
	v.SetDefault("notion.token", "")
	v.SetDefault("template.path", "")

	v.SetDefault("pipeline.call_timeout_secs", 120)
	v.SetDefault("pipeline.vision_concurrency", 4)
	v.SetDefault("pipeline.preview_length", 1000)
	v.SetDefault("pipeline.pdf_dpi", 300)
	v.SetDefault("pipeline.max_image_edge", 1568)
	v.SetDefault("pipeline.max_part_mb", 64)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.circuit_failure_threshold", 5)
	v.SetDefault("retry.circuit_reset_secs", 30)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "doc-intake.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", "audit")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.email_failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
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
