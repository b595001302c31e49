package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/horizon/internal/config"
	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/logging"
)

// NewServer builds one server from its configuration. API keys are read
// from the environment variable the configuration names.
func NewServer(ctx context.Context, sc config.ServerConfig) (Server, error) {
	switch sc.Kind {
	case "gemini":
		keyEnv := sc.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "GEMINI_API_KEY"
		}
		g, err := NewGemini(ctx, GeminiConfig{Name: sc.Name, Model: sc.Model, APIKey: os.Getenv(keyEnv)})
		if err != nil {
			return nil, err
		}
		return g, nil
	case "ollama":
		o, err := NewOllama(OllamaConfig{Name: sc.Name, Model: sc.Model, BaseURL: sc.BaseURL})
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, errors.NewValidationError("unsupported server kind").WithField("kind").WithValue(sc.Kind)
	}
}

// NewFromConfig builds the rate-limited router described by cfg.
func NewFromConfig(ctx context.Context, cfg config.BackendConfig, logger *logging.Logger) (Backend, error) {
	servers := make([]Server, 0, len(cfg.Servers))
	for _, sc := range cfg.Servers {
		s, err := NewServer(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", sc.Name, err)
		}
		servers = append(servers, s)
	}
	return newRouted(servers, cfg, logger)
}

func newRouted(servers []Server, cfg config.BackendConfig, logger *logging.Logger) (Backend, error) {
	router, err := NewRouter(servers,
		WithRouterLogger(logger),
		WithCallTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return NewRateLimited(router, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst), nil
}
