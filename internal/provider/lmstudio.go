package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/transcript-buddy/transcriptbuddy/internal/settings"
)

// LMStudioProvider calls a local LM Studio server, which exposes an
// OpenAI-compatible API without credentials.
type LMStudioProvider struct {
	baseURL string
	client  *http.Client
	probe   *http.Client
}

// NewLMStudio builds the LM Studio provider. An empty baseURL falls back
// to the conventional local port.
func NewLMStudio(baseURL string) *LMStudioProvider {
	if baseURL == "" {
		baseURL = settings.DefaultLMStudioBaseURL
	}
	return &LMStudioProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
		probe:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *LMStudioProvider) Name() string { return NameLMStudio }

func (p *LMStudioProvider) Capabilities() Capabilities {
	return Capabilities{RequiresAPIKey: false, IsLocal: true, SupportsStreaming: true}
}

func (p *LMStudioProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return chatComplete(ctx, p.client, NameLMStudio, p.baseURL, "", req)
}

// ListModels asks the local server for its loaded models. An unreachable
// server yields an empty list.
func (p *LMStudioProvider) ListModels(ctx context.Context) ([]string, error) {
	models, err := listChatModels(ctx, p.probe, p.baseURL, "")
	if err != nil {
		return nil, nil
	}
	return models, nil
}

func (p *LMStudioProvider) TestConnection(ctx context.Context) (bool, string) {
	if _, err := listChatModels(ctx, p.probe, p.baseURL, ""); err != nil {
		return false, fmt.Sprintf("cannot reach LM Studio at %s, is the server started?", p.baseURL)
	}
	return true, "connection successful"
}
