// Package provider abstracts heterogeneous LLM backends behind one
// completion interface, covering cloud API-key providers and local
// HTTP-served runners discovered on fixed ports.
package provider

import "context"

// Provider names accepted by the gateway.
const (
	NameOpenAI   = "openai"
	NameGemini   = "gemini"
	NameClaude   = "claude"
	NameCopilot  = "copilot"
	NameOllama   = "ollama"
	NameLMStudio = "lmstudio"
)

// Status describes a provider's implementation state.
type Status string

const (
	// StatusAvailable marks a provider that can serve completions.
	StatusAvailable Status = "available"
	// StatusComingSoon marks a provider that is listed but not yet usable.
	StatusComingSoon Status = "coming_soon"
)

// Capabilities is the static capability set a provider advertises.
type Capabilities struct {
	RequiresAPIKey    bool `json:"requires_api_key"`   // Whether an API key is needed to use the provider.
	IsLocal           bool `json:"is_local"`           // Whether the backend runs on the local machine.
	SupportsStreaming bool `json:"supports_streaming"` // Whether streamed completions are supported.
}

// Info is the display record for one provider entry.
type Info struct {
	Name          string       `json:"name"`               // Stable identifier, e.g. "openai".
	DisplayName   string       `json:"display_name"`       // Human-readable name.
	Description   string       `json:"description"`        // Short description for UI display.
	Status        Status       `json:"status"`             // available or coming_soon.
	Capabilities  Capabilities `json:"capabilities"`       // Static capability flags.
	DefaultModels []string     `json:"default_models"`     // Well-known models when discovery is unavailable.
	Endpoint      string       `json:"endpoint,omitempty"` // Default endpoint for local providers.
}

// CompletionRequest is one completion call.
type CompletionRequest struct {
	Model        string  // Model identifier.
	Temperature  float64 // Sampling temperature.
	SystemPrompt string  // Optional system instructions.
	Prompt       string  // User prompt including any retrieved context.
	MaxTokens    int     // Optional completion token cap, 0 means provider default.
}

// CompletionResponse is a parsed completion result.
type CompletionResponse struct {
	Content          string // Generated text.
	Model            string // Model that actually served the request.
	PromptTokens     int    // Tokens consumed by the prompt, 0 when unreported.
	CompletionTokens int    // Tokens generated, 0 when unreported.
}

// Provider is one LLM backend.
type Provider interface {
	// Name returns the stable provider identifier.
	Name() string

	// Capabilities returns the provider's static capability set.
	Capabilities() Capabilities

	// Complete runs one completion call. Failures are returned as
	// *ProviderError.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ListModels returns the models the backend currently serves. An
	// unreachable local backend yields an empty list, not an error.
	ListModels(ctx context.Context) ([]string, error)

	// TestConnection probes the backend. It never returns an error;
	// unreachable backends report ok=false with a diagnostic message.
	TestConnection(ctx context.Context) (ok bool, message string)
}
