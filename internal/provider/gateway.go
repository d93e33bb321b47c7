package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config carries the credentials and endpoint overrides the gateway uses
// to construct providers.
type Config struct {
	OpenAIAPIKey    string // API key for the OpenAI provider.
	OpenAIBaseURL   string // Override for the OpenAI endpoint, empty means the public API.
	OllamaBaseURL   string // Override for the Ollama endpoint.
	LMStudioBaseURL string // Override for the LM Studio endpoint.
}

// Gateway resolves provider names to backends and applies the retry
// policy: a timed-out completion is retried once after a short backoff
// before the ProviderError surfaces.
type Gateway struct {
	cfg     Config
	backoff time.Duration
}

// NewGateway builds a gateway over the configured backends.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{cfg: cfg, backoff: 500 * time.Millisecond}
}

// Resolve returns the backend for a provider name. Coming-soon providers
// and unknown names fail with a ProviderError of kind unavailable.
func (g *Gateway) Resolve(name, baseURL, apiKey string) (Provider, error) {
	switch name {
	case NameOpenAI:
		if apiKey == "" {
			apiKey = g.cfg.OpenAIAPIKey
		}
		if baseURL == "" {
			baseURL = g.cfg.OpenAIBaseURL
		}
		return NewOpenAI(baseURL, apiKey), nil
	case NameOllama:
		if baseURL == "" {
			baseURL = g.cfg.OllamaBaseURL
		}
		return NewOllama(baseURL), nil
	case NameLMStudio:
		if baseURL == "" {
			baseURL = g.cfg.LMStudioBaseURL
		}
		return NewLMStudio(baseURL), nil
	}

	if info, ok := Lookup(name); ok && info.Status == StatusComingSoon {
		return nil, &ProviderError{
			Provider: name,
			Kind:     ErrUnavailable,
			Message:  fmt.Sprintf("%s integration is coming soon, use openai, ollama or lmstudio", info.DisplayName),
		}
	}
	return nil, &ProviderError{Provider: name, Kind: ErrUnavailable, Message: "unknown provider"}
}

// Complete runs one completion against the named provider. A timeout is
// retried once before the error surfaces; all other failures surface
// immediately.
func (g *Gateway) Complete(ctx context.Context, name, baseURL string, req CompletionRequest) (CompletionResponse, error) {
	backend, err := g.Resolve(name, baseURL, "")
	if err != nil {
		return CompletionResponse{}, err
	}
	return g.completeWithRetry(ctx, backend, req)
}

func (g *Gateway) completeWithRetry(ctx context.Context, backend Provider, req CompletionRequest) (CompletionResponse, error) {
	resp, err := backend.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != ErrTimeout || ctx.Err() != nil {
		return CompletionResponse{}, err
	}

	log.Debugf("provider %s completion timed out, retrying once", backend.Name())
	select {
	case <-time.After(g.backoff):
	case <-ctx.Done():
		return CompletionResponse{}, provErr
	}
	return backend.Complete(ctx, req)
}

// ListModels returns model discovery for the named provider. Coming-soon
// providers report their well-known defaults.
func (g *Gateway) ListModels(ctx context.Context, name, baseURL string) ([]string, error) {
	backend, err := g.Resolve(name, baseURL, "")
	if err != nil {
		if info, ok := Lookup(name); ok && info.Status == StatusComingSoon {
			return info.DefaultModels, nil
		}
		return nil, err
	}
	return backend.ListModels(ctx)
}

// TestConnection probes the named provider without surfacing errors.
func (g *Gateway) TestConnection(ctx context.Context, name, baseURL, apiKey string) (bool, string) {
	backend, err := g.Resolve(name, baseURL, apiKey)
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) {
			return false, provErr.Message
		}
		return false, err.Error()
	}
	return backend.TestConnection(ctx)
}
