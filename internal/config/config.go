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
	Supabase   SupabaseConfig   `yaml:"supabase" mapstructure:"supabase"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Mail       MailConfig       `yaml:"mail" mapstructure:"mail"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Router     RouterConfig     `yaml:"router" mapstructure:"router"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Outreach   OutreachConfig   `yaml:"outreach" mapstructure:"outreach"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lead state database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SupabaseConfig holds the company research database settings.
type SupabaseConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	RateLimitPS float64 `yaml:"rate_limit_ps" mapstructure:"rate_limit_ps"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	Disabled    bool   `yaml:"disabled" mapstructure:"disabled"`
}

// MailConfig holds SMTP settings for outreach email delivery.
type MailConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
	FromName string `yaml:"from_name" mapstructure:"from_name"`
	// DemoRecipient, when set, redirects every outgoing message to a
	// single inbox. Used in demos and staging.
	DemoRecipient string `yaml:"demo_recipient" mapstructure:"demo_recipient"`
}

// SalesforceConfig holds Salesforce JWT auth settings for handoff sync.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// RouterConfig configures industry query routing.
type RouterConfig struct {
	// KeywordsPath optionally points to a YAML file overriding the
	// built-in industry keyword tables.
	KeywordsPath string `yaml:"keywords_path" mapstructure:"keywords_path"`
	DefaultLimit int    `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int    `yaml:"max_limit" mapstructure:"max_limit"`
}

// ScoringConfig configures composite lead scoring.
type ScoringConfig struct {
	// WeightsPath optionally points to a YAML file overriding the
	// built-in component weights and thresholds.
	WeightsPath string `yaml:"weights_path" mapstructure:"weights_path"`
}

// OutreachConfig configures the outreach campaign runner.
type OutreachConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimitPS    float64 `yaml:"rate_limit_ps" mapstructure:"rate_limit_ps"`
	FailureStrikes int     `yaml:"failure_strikes" mapstructure:"failure_strikes"`
}

// PipelineConfig configures workflow execution.
type PipelineConfig struct {
	MaxSteps              int `yaml:"max_steps" mapstructure:"max_steps"`
	SimulationTimeoutSecs int `yaml:"simulation_timeout_secs" mapstructure:"simulation_timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background health checks and alerting.
type MonitoringConfig struct {
	// WebhookURL receives alert payloads as JSON POSTs. Empty disables
	// delivery; alerts are still logged.
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DLQDepthThreshold    int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
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
	v.SetEnvPrefix("LEADFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_leads", 5)
	v.SetDefault("supabase.rate_limit_ps", 10)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from_name", "Sells Group")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("router.default_limit", 50)
	v.SetDefault("router.max_limit", 100)
	v.SetDefault("outreach.max_attempts", 5)
	v.SetDefault("outreach.rate_limit_ps", 1)
	v.SetDefault("outreach.failure_strikes", 2)
	v.SetDefault("pipeline.max_steps", 25)
	v.SetDefault("pipeline.simulation_timeout_secs", 20)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.dlq_depth_threshold", 25)

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
// Modes: "pipeline" (full workflow run), "outreach" (campaign only),
// "serve" (status server).
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Batch.MaxConcurrentLeads >= 1 && c.Batch.MaxConcurrentLeads <= 50,
		"batch.max_concurrent_leads must be between 1 and 50")

	switch mode {
	case "pipeline":
		check(c.Store.Driver == "sqlite" || c.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres")
		if !c.Anthropic.Disabled {
			check(c.Anthropic.Key != "", "anthropic.key is required (or set anthropic.disabled)")
		}
	case "outreach":
		check(c.Mail.Host != "", "mail.host is required")
		check(c.Mail.From != "", "mail.from is required")
		check(c.Outreach.MaxAttempts > 0, "outreach.max_attempts must be > 0")
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
