package config

import (
	"time"

	"github.com/nfraser/mail-triage/internal/core"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// StoreConfig represents the task/corpus store configuration
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// MailConfig represents the mail collaborator configuration
type MailConfig struct {
	Host          string
	Port          string
	Username      string
	Password      string
	TLS           bool
	Folder        string
	JunkFolder    string
	ArchiveFolder string
	PollInterval  time.Duration
	FetchLimit    int
	FetchWindow   time.Duration
}

// PipelineConfig represents pipeline behavior flags
type PipelineConfig struct {
	FYIInformationalTasks bool
	MoveSpam              bool
	ArchiveNewsletters    bool
}

// SelectorConfig represents the few-shot selector limits
type SelectorConfig struct {
	MaxExamples   int
	MinScore      float64
	SubjectBudget int
	BodyBudget    int
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetMail returns the mail collaborator configuration
func (c *Config) GetMail() MailConfig {
	pollInterval, err := c.GetDuration("mail.poll_interval")
	if err != nil {
		pollInterval = 5 * time.Minute
	}
	fetchWindow, err := c.GetDuration("mail.fetch_window")
	if err != nil {
		fetchWindow = 7 * 24 * time.Hour
	}
	return MailConfig{
		Host:          c.GetString("mail.host"),
		Port:          c.GetString("mail.port"),
		Username:      c.GetString("mail.username"),
		Password:      c.GetString("mail.password"),
		TLS:           c.GetBool("mail.tls"),
		Folder:        c.GetString("mail.folder"),
		JunkFolder:    c.GetString("mail.junk_folder"),
		ArchiveFolder: c.GetString("mail.archive_folder"),
		PollInterval:  pollInterval,
		FetchLimit:    c.GetInt("mail.fetch_limit"),
		FetchWindow:   fetchWindow,
	}
}

// GetPipeline returns the pipeline behavior flags
func (c *Config) GetPipeline() PipelineConfig {
	return PipelineConfig{
		FYIInformationalTasks: c.GetBool("pipeline.fyi_informational_tasks"),
		MoveSpam:              c.GetBool("pipeline.move_spam"),
		ArchiveNewsletters:    c.GetBool("pipeline.archive_newsletters"),
	}
}

// GetSelector returns the few-shot selector limits
func (c *Config) GetSelector() SelectorConfig {
	return SelectorConfig{
		MaxExamples:   c.GetInt("selector.max_examples"),
		MinScore:      c.GetFloat64("selector.min_score"),
		SubjectBudget: c.GetInt("selector.subject_budget"),
		BodyBudget:    c.GetInt("selector.body_budget"),
	}
}

// GetThresholds returns the per-category confidence thresholds.
// Unrecognized category keys are ignored; missing ones fall back to
// the policy defaults.
func (c *Config) GetThresholds() map[core.Category]float64 {
	thresholds := make(map[core.Category]float64)
	for key := range c.v.GetStringMap("thresholds") {
		category, err := core.ParseCategory(key)
		if err != nil {
			continue
		}
		thresholds[category] = c.GetFloat64("thresholds." + key)
	}
	return thresholds
}

// GetSenderRules returns the category -> domain-list sender rules.
func (c *Config) GetSenderRules() map[string][]string {
	rules := make(map[string][]string)
	for key := range c.v.GetStringMap("rules.domains") {
		rules[key] = c.GetStringSlice("rules.domains." + key)
	}
	return rules
}
