package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// History modes decide what the model receives on each submit.
const (
	HistoryFull   = "full"
	HistorySingle = "single"
)

// Config holds the application configuration
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Server       ServerConfig       `mapstructure:"server"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Format       FormatConfig       `mapstructure:"format"`
	LogLevel     string             `mapstructure:"log_level"`
	LogFormat    string             `mapstructure:"log_format"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// ConversationConfig controls how submits reach the model.
type ConversationConfig struct {
	// History is either "full" (send the whole log) or "single" (send only the new turn).
	History string `mapstructure:"history"`
	// RequestTimeout bounds one model call. Zero means no timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FormatConfig controls the reply formatter.
type FormatConfig struct {
	AllowRawHTML bool `mapstructure:"allow_raw_html"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("conversation.history", HistoryFull)
	v.SetDefault("conversation.request_timeout", time.Duration(0))
	v.SetDefault("format.allow_raw_html", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load loads the configuration from config.yaml in the working directory, or from
// the file named by CONFIG_PATH. A missing default file is not an error; env
// variables prefixed with CHATWIDGET_ override file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHATWIDGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = vendorKeyFromEnv(config.LLM.Provider)
	}

	config.LLM.Provider = strings.ToLower(strings.TrimSpace(config.LLM.Provider))
	config.Conversation.History = strings.ToLower(strings.TrimSpace(config.Conversation.History))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func vendorKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unsupported llm provider %q (want %q or %q)", c.LLM.Provider, ProviderOpenAI, ProviderGemini)
	}
	switch c.Conversation.History {
	case HistoryFull, HistorySingle:
	default:
		return fmt.Errorf("unsupported conversation history mode %q (want %q or %q)", c.Conversation.History, HistoryFull, HistorySingle)
	}
	if c.Conversation.RequestTimeout < 0 {
		return errors.New("conversation.request_timeout must not be negative")
	}
	return nil
}
