// Package llm provides the generation backends the horizon engine talks to:
// Gemini and Ollama servers, a router that prefers one named server and
// falls back to the others, and a rate limiter shared across calls.
package llm

import (
	"context"
)

// Request is one backend call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	// MaxTokens caps the response length. 0 leaves it to the server.
	MaxTokens int
	// PreferredServer is tried first by a Router. Empty means the first
	// configured server.
	PreferredServer string
}

// Response is the text a backend produced.
type Response struct {
	Content string
	Server  string
	Model   string
}

// Backend generates text for a request. Implementations must honor ctx
// cancellation at the transport boundary.
type Backend interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Server is a Backend with a stable name for routing and metrics.
type Server interface {
	Backend
	Name() string
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
