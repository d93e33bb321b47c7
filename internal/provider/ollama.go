package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/transcript-buddy/transcriptbuddy/internal/settings"
)

// OllamaProvider calls a local Ollama server over its native API.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	probe   *http.Client
}

// NewOllama builds the Ollama provider. An empty baseURL falls back to
// the conventional local port.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = settings.DefaultOllamaBaseURL
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
		probe:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *OllamaProvider) Name() string { return NameOllama }

func (p *OllamaProvider) Capabilities() Capabilities {
	return Capabilities{RequiresAPIKey: false, IsLocal: true, SupportsStreaming: true}
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	payload := ollamaChatRequest{Model: req.Model, Stream: false}
	payload.Options.Temperature = req.Temperature
	payload.Options.NumPredict = req.MaxTokens
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResponse{}, malformed(NameOllama, "encode request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, malformed(NameOllama, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, classifyTransportError(NameOllama, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, classifyStatus(NameOllama, resp.StatusCode)
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResponse{}, malformed(NameOllama, "decode response", err)
	}
	if parsed.Message.Content == "" {
		return CompletionResponse{}, malformed(NameOllama, "response has no message content", nil)
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}
	return CompletionResponse{
		Content:          parsed.Message.Content,
		Model:            model,
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
	}, nil
}

// ListModels asks the local server for its installed models. An
// unreachable server yields an empty list.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, nil
	}
	resp, err := p.probe.Do(httpReq)
	if err != nil {
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil
	}
	models := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, m.Name)
	}
	sort.Strings(models)
	return models, nil
}

func (p *OllamaProvider) TestConnection(ctx context.Context) (bool, string) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := p.probe.Do(httpReq)
	if err != nil {
		return false, fmt.Sprintf("cannot reach Ollama at %s, is it running?", p.baseURL)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("Ollama at %s answered status %d", p.baseURL, resp.StatusCode)
	}
	return true, "connection successful"
}
