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

// chatMessage is one message of an OpenAI-compatible chat payload.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// chatComplete posts an OpenAI-compatible chat completion and parses the
// first choice. Both the OpenAI and LM Studio providers speak this format.
func chatComplete(ctx context.Context, client *http.Client, providerName, baseURL, apiKey string, req CompletionRequest) (CompletionResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResponse{}, malformed(providerName, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, malformed(providerName, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, classifyTransportError(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, classifyStatus(providerName, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResponse{}, malformed(providerName, "decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return CompletionResponse{}, malformed(providerName, "response has no choices", nil)
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}
	return CompletionResponse{
		Content:          parsed.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// listChatModels fetches an OpenAI-compatible model listing.
func listChatModels(ctx context.Context, client *http.Client, baseURL, apiKey string) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var parsed modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAI builds the OpenAI provider. An empty baseURL falls back to
// the public API endpoint.
func NewOpenAI(baseURL, apiKey string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = settings.DefaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return NameOpenAI }

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{RequiresAPIKey: true, IsLocal: false, SupportsStreaming: true}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return chatComplete(ctx, p.client, NameOpenAI, p.baseURL, p.apiKey, req)
}

// ListModels returns the chat-capable models of the account, falling
// back to the well-known set when listing fails.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	models, err := listChatModels(ctx, p.client, p.baseURL, p.apiKey)
	if err != nil {
		return []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"}, nil
	}
	chat := make([]string, 0, len(models))
	for _, id := range models {
		if strings.HasPrefix(id, "gpt-") {
			chat = append(chat, id)
		}
	}
	sort.Strings(chat)
	return chat, nil
}

func (p *OpenAIProvider) TestConnection(ctx context.Context) (bool, string) {
	if p.apiKey == "" {
		return false, "no API key configured"
	}
	if _, err := listChatModels(ctx, p.client, p.baseURL, p.apiKey); err != nil {
		return false, fmt.Sprintf("cannot reach OpenAI at %s: %v", p.baseURL, err)
	}
	return true, "connection successful"
}
