package provider

import (
	"github.com/transcript-buddy/transcriptbuddy/internal/settings"
)

// registry lists every provider the engine knows about, including the
// ones that are visible but not yet usable. Order is display order.
var registry = []Info{
	{
		Name:          NameOpenAI,
		DisplayName:   "OpenAI",
		Description:   "GPT-4, GPT-3.5 Turbo",
		Status:        StatusAvailable,
		Capabilities:  Capabilities{RequiresAPIKey: true, SupportsStreaming: true},
		DefaultModels: []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"},
	},
	{
		Name:          NameOllama,
		DisplayName:   "Ollama",
		Description:   "Local LLMs (Llama, Mistral, etc.)",
		Status:        StatusAvailable,
		Capabilities:  Capabilities{IsLocal: true, SupportsStreaming: true},
		DefaultModels: []string{"llama3.2", "mistral", "codellama", "phi"},
		Endpoint:      settings.DefaultOllamaBaseURL,
	},
	{
		Name:         NameLMStudio,
		DisplayName:  "LM Studio",
		Description:  "Local model runner",
		Status:       StatusAvailable,
		Capabilities: Capabilities{IsLocal: true, SupportsStreaming: true},
		Endpoint:     settings.DefaultLMStudioBaseURL,
	},
	{
		Name:          NameGemini,
		DisplayName:   "Google Gemini",
		Description:   "Gemini Pro, Gemini Ultra",
		Status:        StatusComingSoon,
		Capabilities:  Capabilities{RequiresAPIKey: true},
		DefaultModels: []string{"gemini-pro", "gemini-pro-vision", "gemini-ultra"},
	},
	{
		Name:          NameClaude,
		DisplayName:   "Anthropic Claude",
		Description:   "Claude 3 Opus, Sonnet, Haiku",
		Status:        StatusComingSoon,
		Capabilities:  Capabilities{RequiresAPIKey: true},
		DefaultModels: []string{"claude-3-opus", "claude-3-sonnet", "claude-3-haiku"},
	},
	{
		Name:          NameCopilot,
		DisplayName:   "Microsoft Copilot",
		Description:   "Azure OpenAI Service",
		Status:        StatusComingSoon,
		Capabilities:  Capabilities{RequiresAPIKey: true},
		DefaultModels: []string{"gpt-4", "gpt-35-turbo"},
	},
}

// ListProviders returns every known provider entry in display order.
// Coming-soon providers are included so callers can render them without
// special-casing.
func ListProviders() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds the registry entry for a provider name.
func Lookup(name string) (Info, bool) {
	for _, info := range registry {
		if info.Name == name {
			return info, true
		}
	}
	return Info{}, false
}
