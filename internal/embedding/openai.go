package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIEmbeddingsURL = "https://api.openai.com/v1/embeddings"
	defaultOpenAIModel         = "text-embedding-3-small"
	defaultOpenAIDimension     = 1536
	defaultRequestTimeout      = 60 * time.Second
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	url       string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

// OpenAIConfig parameterizes an OpenAIEmbedder.
type OpenAIConfig struct {
	BaseURL   string // Endpoint base; defaults to the OpenAI API.
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder with defaults applied.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	url := strings.TrimSpace(cfg.BaseURL)
	if url == "" {
		url = defaultOpenAIEmbeddingsURL
	} else {
		url = strings.TrimSuffix(url, "/") + "/embeddings"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = defaultOpenAIDimension
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &OpenAIEmbedder{
		url:       url,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name identifies the backend.
func (e *OpenAIEmbedder) Name() string { return "openai" }

// Dimension returns the configured vector dimensionality.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
	Encoding   string   `json:"encoding_format"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// Embed requests one vector per input text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, errMarshal := json.Marshal(embeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimension,
		Encoding:   "float",
	})
	if errMarshal != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("embedding: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, errDo := e.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: api status %d: %s", resp.StatusCode, truncate(string(payload), 200))
	}

	var parsed embeddingResponse
	if errUnmarshal := json.Unmarshal(payload, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("embedding: unmarshal response: %w", errUnmarshal)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embedding: vector index %d out of range", item.Index)
		}
		if len(item.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding: vector dimension %d, want %d", len(item.Embedding), e.dimension)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
