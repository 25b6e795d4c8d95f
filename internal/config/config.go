// Package config loads process configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredential is returned by Validate when a required secret or
// endpoint is not configured.
var ErrMissingCredential = errors.New("missing credential")

// Providers accepted in llm.provider and llm.single_turn_provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Index backends accepted in index.backend.
const (
	BackendDir      = "dir"
	BackendPostgres = "postgres"
)

// Purpose names what the process is about to do, which decides the
// settings Validate insists on.
type Purpose int

const (
	// PurposeServe answers questions (API server and console).
	PurposeServe Purpose = iota
	// PurposeIndex builds the index.
	PurposeIndex
	// PurposeRelay runs the Telegram relay.
	PurposeRelay
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Google    GoogleConfig    `mapstructure:"google"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LLMConfig selects the language model.  The single-turn fields, when set,
// override provider and model for the single-turn pipeline mode.
type LLMConfig struct {
	Provider           string  `mapstructure:"provider"`
	Model              string  `mapstructure:"model"`
	Temperature        float32 `mapstructure:"temperature"`
	SingleTurnProvider string  `mapstructure:"single_turn_provider"`
	SingleTurnModel    string  `mapstructure:"single_turn_model"`
	RequestsPerMinute  float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent      int     `mapstructure:"max_concurrent"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type GoogleConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type EmbeddingConfig struct {
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	BatchSize int    `mapstructure:"batch_size"`
}

type IndexConfig struct {
	Backend      string `mapstructure:"backend"`
	Dir          string `mapstructure:"dir"`
	TopK         int    `mapstructure:"top_k"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type PipelineConfig struct {
	Mode             string `mapstructure:"mode"`
	CondenseQuestion bool   `mapstructure:"condense_question"`
}

// MemoryConfig bounds the session registry.  Zero values keep every
// session for the life of the process.
type MemoryConfig struct {
	MaxSessions int           `mapstructure:"max_sessions"`
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
}

type TelegramConfig struct {
	Token      string        `mapstructure:"token"`
	ChatAPIURL string        `mapstructure:"chat_api_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envAliases are the plain variable names accepted in addition to the
// MEDBOT_-prefixed ones.
var envAliases = map[string][]string{
	"server.port":           {"PORT"},
	"openai.api_key":        {"OPENAI_API_KEY"},
	"openai.base_url":       {"OPENAI_BASE_URL"},
	"google.api_key":        {"GOOGLE_API_KEY"},
	"database.url":          {"DATABASE_URL"},
	"telegram.token":        {"TELEGRAM_TOKEN"},
	"telegram.chat_api_url": {"CHAT_API_URL", "FASTAPI_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.single_turn_provider", "")
	v.SetDefault("llm.single_turn_model", "")
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.max_concurrent", 0)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("google.api_key", "")

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.batch_size", 64)

	v.SetDefault("index.backend", BackendDir)
	v.SetDefault("index.dir", "medbot_index")
	v.SetDefault("index.top_k", 5)
	v.SetDefault("index.chunk_size", 800)
	v.SetDefault("index.chunk_overlap", 100)
	v.SetDefault("database.url", "")

	v.SetDefault("pipeline.mode", "multi_turn")
	v.SetDefault("pipeline.condense_question", false)

	v.SetDefault("memory.max_sessions", 0)
	v.SetDefault("memory.idle_ttl", time.Duration(0))

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_api_url", "")
	v.SetDefault("telegram.timeout", 120*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration.  path may be empty, in which case only defaults
// and the environment are used.  Environment variables are named after the
// key with a MEDBOT_ prefix, e.g. MEDBOT_LLM_PROVIDER for llm.provider.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MEDBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		prefixed := "MEDBOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.LLM.SingleTurnProvider = strings.ToLower(cfg.LLM.SingleTurnProvider)
	cfg.Index.Backend = strings.ToLower(cfg.Index.Backend)
	cfg.Pipeline.Mode = strings.ToLower(strings.TrimSpace(cfg.Pipeline.Mode))
	return &cfg, nil
}

// ModelFor returns the provider and model used by the given pipeline mode.
func (c *Config) ModelFor(mode string) (provider, model string) {
	if mode == "single_turn" && c.LLM.SingleTurnProvider != "" {
		return c.LLM.SingleTurnProvider, c.LLM.SingleTurnModel
	}
	return c.LLM.Provider, c.LLM.Model
}

// Validate checks that everything purpose needs is configured, so the
// process fails at startup rather than on the first request.
func (c *Config) Validate(purpose Purpose) error {
	var errs []error
	switch purpose {
	case PurposeServe:
		provider, _ := c.ModelFor(c.Pipeline.Mode)
		errs = append(errs, c.validateProvider(provider))
		errs = append(errs, c.validateEmbedding(), c.validateIndex())
	case PurposeIndex:
		errs = append(errs, c.validateEmbedding(), c.validateIndex())
	case PurposeRelay:
		if c.Telegram.Token == "" {
			errs = append(errs, fmt.Errorf("%w: telegram.token (TELEGRAM_TOKEN)", ErrMissingCredential))
		}
		if c.Telegram.ChatAPIURL == "" {
			errs = append(errs, fmt.Errorf("%w: telegram.chat_api_url (CHAT_API_URL)", ErrMissingCredential))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateProvider(provider string) error {
	switch provider {
	case ProviderGemini:
		if c.Google.APIKey == "" {
			return fmt.Errorf("%w: google.api_key (GOOGLE_API_KEY)", ErrMissingCredential)
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: openai.api_key (OPENAI_API_KEY)", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("unknown llm provider %q", provider)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if c.OpenAI.APIKey == "" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("%w: openai.api_key or embedding.base_url for embeddings", ErrMissingCredential)
	}
	return nil
}

func (c *Config) validateIndex() error {
	switch c.Index.Backend {
	case BackendDir:
		if c.Index.Dir == "" {
			return errors.New("index.dir must be set")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("%w: database.url (DATABASE_URL)", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	return nil
}
