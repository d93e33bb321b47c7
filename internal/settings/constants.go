package settings

// Ingestion and retrieval defaults.
const (
	// DefaultChunkSize is the target chunk size in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the overlap between consecutive chunks in characters.
	DefaultChunkOverlap = 200
	// DefaultSearchResults is the default number of retrieval results.
	DefaultSearchResults = 5
	// MaxSearchResults caps the number of retrieval results per request.
	MaxSearchResults = 20
	// CandidatePoolFactor expands the vector search pool before thresholding.
	CandidatePoolFactor = 3
	// DefaultMinScore drops candidates below this normalized similarity.
	DefaultMinScore = 0.25
	// MaxQuestionLength caps question text length in characters.
	MaxQuestionLength = 1000
	// MinQuestionLength rejects degenerate questions.
	MinQuestionLength = 3
)

// Rate limiting defaults.
const (
	// DefaultQueryRateLimitPerMinute limits query/search calls per user.
	DefaultQueryRateLimitPerMinute = 20
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "tbd:rl"
)

// Provider defaults.
const (
	// DefaultOllamaBaseURL is the fixed local Ollama endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"
	// DefaultLMStudioBaseURL is the fixed local LM Studio endpoint.
	DefaultLMStudioBaseURL = "http://localhost:1234/v1"
	// DefaultOpenAIBaseURL is the OpenAI API endpoint.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)
