package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/horizon/internal/errors"
	"github.com/Iron-Ham/horizon/internal/logging"
)

// Router dispatches each request to its preferred server and falls back to
// the remaining servers, in configuration order, when a call fails.
type Router struct {
	servers     []Server
	logger      *logging.Logger
	callTimeout time.Duration
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used for fallback warnings.
func WithRouterLogger(l *logging.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCallTimeout bounds every individual server call. Zero means calls are
// bounded only by the caller's context.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.callTimeout = d }
}

// NewRouter creates a Router over servers. Server names must be unique.
func NewRouter(servers []Server, opts ...RouterOption) (*Router, error) {
	if len(servers) == 0 {
		return nil, errors.ErrNoServers
	}
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if seen[s.Name()] {
			return nil, fmt.Errorf("duplicate server name %q", s.Name())
		}
		seen[s.Name()] = true
	}

	r := &Router{servers: servers, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Servers returns the configured server names in fallback order.
func (r *Router) Servers() []string {
	names := make([]string, len(r.servers))
	for i, s := range r.servers {
		names[i] = s.Name()
	}
	return names
}

// order returns the servers to try for preferred.
func (r *Router) order(preferred string) ([]Server, error) {
	if preferred == "" {
		return r.servers, nil
	}
	for i, s := range r.servers {
		if s.Name() == preferred {
			ordered := make([]Server, 0, len(r.servers))
			ordered = append(ordered, s)
			ordered = append(ordered, r.servers[:i]...)
			ordered = append(ordered, r.servers[i+1:]...)
			return ordered, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errors.ErrUnknownServer, preferred)
}

// Generate tries each server in order and returns the first success. If all
// fail the errors are joined. A done context stops the fallback chain.
func (r *Router) Generate(ctx context.Context, req Request) (*Response, error) {
	servers, err := r.order(req.PreferredServer)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, s := range servers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		resp, err := r.call(ctx, s, req)
		if err == nil {
			if resp == nil {
				resp = &Response{}
			}
			if resp.Server == "" {
				resp.Server = s.Name()
			}
			return resp, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		r.logger.Warn("generation server failed",
			"server", s.Name(),
			"preferred", req.PreferredServer,
			"error", err.Error(),
		)
	}
	return nil, errors.Join(errs...)
}

func (r *Router) call(ctx context.Context, s Server, req Request) (*Response, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	return s.Generate(ctx, req)
}
