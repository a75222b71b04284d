package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/sequence-engine/internal/pkg/webhookauth"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sequence engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	ESP       ESPConfig       `yaml:"esp"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                int      `yaml:"port"`
	Host                string   `yaml:"host"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects the storage backend. Driver is "postgres" or
// "memory". The memory driver keeps all state in-process and is loaded
// from SeedFile at startup.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	URL          string `yaml:"url"`
	SeedFile     string `yaml:"seed_file"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig is optional; an empty URL disables the sequence cache and
// makes the ticker lock fall back to Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SchedulerConfig tunes scheduler runs.
type SchedulerConfig struct {
	InProcess       bool `yaml:"in_process"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	Concurrency     int  `yaml:"concurrency"`
	ClaimTTLSeconds int  `yaml:"claim_ttl_seconds"`
}

func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c SchedulerConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSeconds) * time.Second
}

// TriggerConfig holds the shared secret for the cron trigger and the
// operator API.
type TriggerConfig struct {
	Secret string `yaml:"secret"`
}

// WebhookConfig enables signature checks on provider callbacks when
// SigningSecret is set.
type WebhookConfig struct {
	SigningSecret string `yaml:"signing_secret"`
}

// ESPConfig selects and configures the email provider.
type ESPConfig struct {
	Provider string       `yaml:"provider"`
	Resend   ResendConfig `yaml:"resend"`
	SES      SESConfig    `yaml:"ses"`
}

// ResendConfig holds Resend API settings.
type ResendConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	From           string `yaml:"from"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

func (c ResendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	From      string `yaml:"from"`
}

// CacheConfig controls the sequence definition cache.
type CacheConfig struct {
	SequenceTTLSeconds int `yaml:"sequence_ttl_seconds"`
}

func (c CacheConfig) SequenceTTL() time.Duration {
	return time.Duration(c.SequenceTTLSeconds) * time.Second
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with only defaults applied. It is used
// when no config file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 120
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Scheduler.IntervalSeconds == 0 {
		c.Scheduler.IntervalSeconds = 60
	}
	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = 16
	}
	if c.Scheduler.ClaimTTLSeconds == 0 {
		c.Scheduler.ClaimTTLSeconds = 300
	}
	if c.ESP.Provider == "" {
		c.ESP.Provider = "resend"
	}
	if c.ESP.Resend.BaseURL == "" {
		c.ESP.Resend.BaseURL = "https://api.resend.com"
	}
	if c.ESP.Resend.TimeoutSeconds == 0 {
		c.ESP.Resend.TimeoutSeconds = 15
	}
	if c.ESP.Resend.MaxRetries == 0 {
		c.ESP.Resend.MaxRetries = 2
	}
	if c.ESP.SES.Region == "" {
		c.ESP.SES.Region = "us-east-1"
	}
	if c.Cache.SequenceTTLSeconds == 0 {
		c.Cache.SequenceTTLSeconds = 600
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// LoadFromEnv loads .env (if present), then the YAML file, then applies
// environment overrides. A missing YAML file is not an error here; the
// engine can be configured from the environment alone.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.SeedFile, "MEMORY_SEED_FILE")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Trigger.Secret, "CRON_SECRET")
	setString(&cfg.Webhook.SigningSecret, "WEBHOOK_SIGNING_SECRET")
	setString(&cfg.ESP.Provider, "ESP_PROVIDER")
	setString(&cfg.ESP.Resend.APIKey, "RESEND_API_KEY")
	setString(&cfg.ESP.Resend.BaseURL, "RESEND_BASE_URL")
	setString(&cfg.ESP.Resend.From, "EMAIL_FROM")
	setString(&cfg.ESP.SES.From, "EMAIL_FROM")
	setString(&cfg.ESP.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.ESP.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.ESP.SES.Region, "AWS_SES_REGION")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setInt(&cfg.Server.Port, "PORT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}
	setInt(&cfg.Scheduler.Concurrency, "SCHEDULER_CONCURRENCY")
	if v := os.Getenv("SCHEDULER_IN_PROCESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.InProcess = b
		}
	}

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	var problems []string
	if c.Trigger.Secret == "" {
		problems = append(problems, "trigger.secret (CRON_SECRET) is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			problems = append(problems, "database.url (DATABASE_URL) is required for the postgres driver")
		}
	case "memory":
		if c.Database.SeedFile == "" {
			problems = append(problems, "database.seed_file (MEMORY_SEED_FILE) is required for the memory driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not one of postgres, memory", c.Database.Driver))
	}
	switch c.ESP.Provider {
	case "resend":
		if c.ESP.Resend.APIKey == "" {
			problems = append(problems, "esp.resend.api_key (RESEND_API_KEY) is required")
		}
		if c.ESP.Resend.From == "" {
			problems = append(problems, "esp.resend.from (EMAIL_FROM) is required")
		}
	case "ses":
		if c.ESP.SES.From == "" {
			problems = append(problems, "esp.ses.from (EMAIL_FROM) is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("esp.provider %q is not one of resend, ses", c.ESP.Provider))
	}
	if c.Webhook.SigningSecret != "" {
		if _, err := webhookauth.New(c.Webhook.SigningSecret); err != nil {
			problems = append(problems, "webhook.signing_secret (WEBHOOK_SIGNING_SECRET): "+err.Error())
		}
	}
	if c.Scheduler.Concurrency < 1 {
		problems = append(problems, "scheduler.concurrency must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
