package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "qwen2.5-coder:14b"

// OllamaConfig configures an Ollama server.
type OllamaConfig struct {
	Name  string
	Model string
	// BaseURL is the server address. Empty reads OLLAMA_HOST.
	BaseURL string
	// HTTPClient overrides the transport (nil uses http.DefaultClient).
	HTTPClient *http.Client
}

// Ollama is a Server backed by a local or remote Ollama daemon.
type Ollama struct {
	name   string
	model  string
	client *api.Client
}

// NewOllama creates an Ollama server. No connection is made until the first
// Generate call.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	var client *api.Client
	if strings.TrimSpace(cfg.BaseURL) != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", cfg.BaseURL, err)
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		client = api.NewClient(u, httpClient)
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client init: %w", err)
		}
		client = c
	}

	o := &Ollama{name: cfg.Name, model: cfg.Model, client: client}
	if o.name == "" {
		o.name = "ollama"
	}
	if strings.TrimSpace(o.model) == "" {
		o.model = defaultOllamaModel
	}
	return o, nil
}

// Name returns the configured server name.
func (o *Ollama) Name() string { return o.name }

// Generate sends req through the chat endpoint without streaming.
func (o *Ollama) Generate(ctx context.Context, req Request) (*Response, error) {
	if o.client == nil {
		return nil, errors.ErrNotInitialized
	}

	messages := make([]api.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.UserPrompt})

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	stream := false
	chat := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var out strings.Builder
	if err := o.client.Chat(ctx, chat, func(cr api.ChatResponse) error {
		out.WriteString(cr.Message.Content)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return &Response{Content: out.String(), Server: o.name, Model: o.model}, nil
}
