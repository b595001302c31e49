package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/horizon/internal/errors"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures a Gemini server.
type GeminiConfig struct {
	Name   string
	Model  string
	APIKey string
}

// Gemini is a Server backed by the Gemini API.
type Gemini struct {
	name   string
	model  string
	client *genai.Client
}

// NewGemini creates a Gemini server. The API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.NewValidationError("gemini API key is not set").WithField("api_key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}

	g := &Gemini{name: cfg.Name, model: cfg.Model, client: client}
	if g.name == "" {
		g.name = "gemini"
	}
	if strings.TrimSpace(g.model) == "" {
		g.model = defaultGeminiModel
	}
	return g, nil
}

// Name returns the configured server name.
func (g *Gemini) Name() string { return g.name }

// Generate sends req as a single-turn request with an optional system
// instruction.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	if g.client == nil {
		return nil, errors.ErrNotInitialized
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.UserPrompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: empty response")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			out.WriteString(part.Text)
		}
	}
	return &Response{Content: out.String(), Server: g.name, Model: g.model}, nil
}
