package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-triage/")
	v.AddConfigPath("$HOME/.mail-triage")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// LLM provider defaults
	v.SetDefault("llm.provider", "openai")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/mail_triage.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/mail_triage")

	// Mail collaborator defaults
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", "993")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.tls", true)
	v.SetDefault("mail.folder", "INBOX")
	v.SetDefault("mail.junk_folder", "Junk")
	v.SetDefault("mail.archive_folder", "")
	v.SetDefault("mail.poll_interval", "5m")
	v.SetDefault("mail.fetch_limit", 50)
	v.SetDefault("mail.fetch_window", "168h")

	// Pipeline defaults
	v.SetDefault("pipeline.fyi_informational_tasks", false)
	v.SetDefault("pipeline.move_spam", false)
	v.SetDefault("pipeline.archive_newsletters", false)

	// Confidence thresholds; 1.0 means never auto-approved
	v.SetDefault("thresholds.fyi", 0.90)
	v.SetDefault("thresholds.newsletter", 0.70)
	v.SetDefault("thresholds.spam_to_delete", 0.70)
	v.SetDefault("thresholds.optional_action", 0.80)
	v.SetDefault("thresholds.optional_event", 0.80)
	v.SetDefault("thresholds.work_relevant", 0.80)
	v.SetDefault("thresholds.job_listing", 0.80)
	v.SetDefault("thresholds.required_personal_action", 1.0)
	v.SetDefault("thresholds.team_action", 1.0)

	// Few-shot selector defaults
	v.SetDefault("selector.max_examples", 5)
	v.SetDefault("selector.min_score", 0.1)
	v.SetDefault("selector.subject_budget", 100)
	v.SetDefault("selector.body_budget", 300)

	// Sender rules: category -> list of domains, empty by default
	v.SetDefault("rules.domains", map[string][]string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
