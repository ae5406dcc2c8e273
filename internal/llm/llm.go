package llm

import (
	"fmt"
	"log/slog"

	"github.com/comigor/chatwidget-go/internal/config"
)

// NewClient builds the Model Client for the configured provider.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg, logger), nil
	case config.ProviderGemini:
		return NewGemini(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
