package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

// DefaultEmbeddingDimensions matches text-embedding-3-small.
const DefaultEmbeddingDimensions = 1536

type Config struct {
	DBPath                     string `yaml:"db_path"`
	LogMode                    string `yaml:"log_mode"`
	Timezone                   string `yaml:"timezone"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	MetricsAddr                string `yaml:"metrics_addr"`
	ClassifierTablePath        string `yaml:"classifier_table_path"`

	PII       PIIConfig       `yaml:"pii"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Memory    MemoryConfig    `yaml:"memory"`
	LLM       LLMConfig       `yaml:"llm"`
	Audit     AuditConfig     `yaml:"audit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Slack     SlackConfig     `yaml:"slack"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

type PIIConfig struct {
	Enabled          *bool    `yaml:"enabled"`
	Entities         []string `yaml:"entities"`
	ExcludedEntities []string `yaml:"excluded_entities"`
	MinConfidence    float64  `yaml:"min_confidence"`
	LogPIIFindings   *bool    `yaml:"log_pii_findings"`
	// FailOpen lets text through unredacted when the detector is down.
	// Off unless explicitly set.
	FailOpen         bool     `yaml:"fail_open"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	MaxConcurrent    int      `yaml:"max_concurrent"`
	PreservePatterns []string `yaml:"preserve_patterns"`
	PersonNames      []string `yaml:"person_names"`
	PresidioURL      string   `yaml:"presidio_url"`
	PresidioLanguage string   `yaml:"presidio_language"`
}

func (p PIIConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func (p PIIConfig) ShouldLogFindings() bool {
	return p.LogPIIFindings == nil || *p.LogPIIFindings
}

type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
}

type RetrievalConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxAttempts    int `yaml:"max_attempts"`
}

type MemoryConfig struct {
	MaxTurns       int    `yaml:"max_turns"`
	ContextTurns   int    `yaml:"context_turns"`
	TokenBudget    int    `yaml:"token_budget"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
	TTLHours       int    `yaml:"ttl_hours"`
}

type LLMConfig struct {
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	Model           string  `yaml:"model"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

type AuditConfig struct {
	Path         string   `yaml:"path"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

type IngestConfig struct {
	SourcePath  string `yaml:"source_path"`
	Concurrency int    `yaml:"concurrency"`
	Schedule    string `yaml:"schedule"`
}

type SlackConfig struct {
	BotToken  string   `yaml:"bot_token"`
	AppToken  string   `yaml:"app_token"`
	ChannelID string   `yaml:"channel_id"`
	AdminIDs  []string `yaml:"admin_ids"`
}

func (s SlackConfig) Configured() bool {
	return s.BotToken != "" && s.AppToken != ""
}

// IsAdmin reports whether a Slack user may run knowledge base maintenance.
func (s SlackConfig) IsAdmin(userID string) bool {
	for _, id := range s.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.LogMode, "LOG_MODE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.MetricsAddr, "METRICS_ADDR")
	envOverride(&cfg.ClassifierTablePath, "CLASSIFIER_TABLE_PATH")

	if val := os.Getenv("PII_ENABLED"); val != "" {
		enabled := parseBool(val)
		cfg.PII.Enabled = &enabled
	}
	if val := os.Getenv("PII_LOG_FINDINGS"); val != "" {
		logFindings := parseBool(val)
		cfg.PII.LogPIIFindings = &logFindings
	}
	envOverrideList(&cfg.PII.Entities, "PII_ENTITIES")
	envOverrideList(&cfg.PII.ExcludedEntities, "PII_EXCLUDED_ENTITIES")
	errs = append(errs, envOverrideFloat(&cfg.PII.MinConfidence, "PII_MIN_CONFIDENCE"))
	envOverrideBool(&cfg.PII.FailOpen, "PII_FAIL_OPEN")
	envOverride(&cfg.PII.PresidioURL, "PRESIDIO_URL")

	envOverride(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	envOverride(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	errs = append(errs, envOverrideInt(&cfg.Embedding.Dimensions, "EMBEDDING_DIMENSIONS"))
	envOverride(&cfg.Embedding.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")

	errs = append(errs, envOverrideInt(&cfg.Memory.MaxTurns, "MEMORY_MAX_TURNS"))
	envOverride(&cfg.Memory.RedisAddr, "REDIS_ADDR")

	envOverride(&cfg.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLM.Model, "LLM_MODEL")

	envOverride(&cfg.Audit.Path, "AUDIT_LOG_PATH")
	envOverrideList(&cfg.Audit.KafkaBrokers, "AUDIT_KAFKA_BROKERS")
	envOverride(&cfg.Audit.KafkaTopic, "AUDIT_KAFKA_TOPIC")

	envOverride(&cfg.Ingest.SourcePath, "INGEST_SOURCE_PATH")
	errs = append(errs, envOverrideInt(&cfg.Ingest.Concurrency, "INGEST_CONCURRENCY"))
	envOverride(&cfg.Ingest.Schedule, "INGEST_SCHEDULE")

	envOverride(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.Slack.AppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.Slack.ChannelID, "SLACK_CHANNEL_ID")
	envOverrideList(&cfg.Slack.AdminIDs, "SLACK_ADMIN_IDS")
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "./incidentrag.db"
	}
	if cfg.LogMode == "" {
		cfg.LogMode = "dev"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}

	if len(cfg.PII.Entities) == 0 {
		cfg.PII.Entities = []string{
			"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER", "US_SSN",
			"CREDIT_CARD", "IP_ADDRESS", "LOCATION", "US_DRIVER_LICENSE",
		}
	}
	if cfg.PII.ExcludedEntities == nil {
		// Incident timestamps are operational data, not PII.
		cfg.PII.ExcludedEntities = []string{"DATE_TIME"}
	}
	if cfg.PII.MinConfidence == 0 {
		cfg.PII.MinConfidence = 0.6
	}
	if cfg.PII.TimeoutSeconds == 0 {
		cfg.PII.TimeoutSeconds = 10
	}
	if cfg.PII.MaxConcurrent == 0 {
		cfg.PII.MaxConcurrent = 4
	}
	if cfg.PII.PreservePatterns == nil {
		cfg.PII.PreservePatterns = []string{`INC\d+`, `CHG\d+`, `PRB\d+`, `TASK\d+`}
	}
	if cfg.PII.PresidioLanguage == "" {
		cfg.PII.PresidioLanguage = "en"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultEmbeddingDimensions
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = 3
	}

	if cfg.Retrieval.TimeoutSeconds == 0 {
		cfg.Retrieval.TimeoutSeconds = 15
	}
	if cfg.Retrieval.MaxAttempts == 0 {
		cfg.Retrieval.MaxAttempts = 3
	}

	if cfg.Memory.MaxTurns == 0 {
		cfg.Memory.MaxTurns = 20
	}
	if cfg.Memory.ContextTurns == 0 {
		cfg.Memory.ContextTurns = 10
	}
	if cfg.Memory.TokenBudget == 0 {
		cfg.Memory.TokenBudget = 4000
	}
	if cfg.Memory.RedisKeyPrefix == "" {
		cfg.Memory.RedisKeyPrefix = "incidentrag:session"
	}
	if cfg.Memory.TTLHours == 0 {
		cfg.Memory.TTLHours = 24
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "./logs/pii_audit.log"
	}
	if cfg.Audit.KafkaTopic == "" {
		cfg.Audit.KafkaTopic = "incidentrag-pii-audit"
	}

	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
}

// Validate checks every recognized option. It runs after defaults.
func (c Config) Validate() error {
	var errs []error
	if c.PII.MinConfidence < 0 || c.PII.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("invalid pii.min_confidence '%f': must be between 0 and 1", c.PII.MinConfidence))
	}
	for _, name := range c.PII.Entities {
		if !knownEntity(name) {
			errs = append(errs, fmt.Errorf("unknown pii entity '%s'", name))
		}
	}
	for _, name := range c.PII.ExcludedEntities {
		if !knownEntity(name) {
			errs = append(errs, fmt.Errorf("unknown pii excluded entity '%s'", name))
		}
	}
	if c.PII.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("invalid pii.timeout_seconds '%d': must be >= 1", c.PII.TimeoutSeconds))
	}
	if c.PII.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("invalid pii.max_concurrent '%d': must be >= 1", c.PII.MaxConcurrent))
	}
	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider must be 'openai' or 'hash', got '%s'", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, fmt.Errorf("invalid embedding.dimensions '%d': must be >= 1", c.Embedding.Dimensions))
	}
	if c.Embedding.MaxAttempts < 1 || c.Retrieval.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1"))
	}
	if c.Memory.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("invalid memory.max_turns '%d': must be >= 1", c.Memory.MaxTurns))
	}
	if c.Memory.ContextTurns > c.Memory.MaxTurns {
		errs = append(errs, fmt.Errorf("memory.context_turns (%d) cannot exceed memory.max_turns (%d)", c.Memory.ContextTurns, c.Memory.MaxTurns))
	}
	if c.Ingest.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("invalid ingest.concurrency '%d': must be >= 1", c.Ingest.Concurrency))
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		errs = append(errs, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds))
	}
	if (c.Slack.BotToken == "") != (c.Slack.AppToken == "") {
		errs = append(errs, fmt.Errorf("slack.bot_token and slack.app_token must be set together"))
	}
	return errors.Join(errs...)
}

func knownEntity(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER", "US_SSN", "CREDIT_CARD",
		"IP_ADDRESS", "LOCATION", "US_DRIVER_LICENSE", "DATE_TIME":
		return true
	}
	return false
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*field = append(*field, part)
		}
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = parseBool(val)
	}
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func parseBool(val string) bool {
	return strings.EqualFold(val, "true") || val == "1"
}

func (c Config) ExternalHTTPTimeout() time.Duration {
	return time.Duration(c.ExternalHTTPTimeoutSeconds) * time.Second
}

func (c Config) PIITimeout() time.Duration {
	return time.Duration(c.PII.TimeoutSeconds) * time.Second
}

func (c Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

func (c Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutSeconds) * time.Second
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func (c Config) MemoryTTL() time.Duration {
	return time.Duration(c.Memory.TTLHours) * time.Hour
}
