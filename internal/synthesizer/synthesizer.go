// Package synthesizer turns retrieved chunks and conversation settings
// into a grounded answer with citations.
package synthesizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// NoRelevantContentAnswer is the deterministic reply for a query whose
// retrieval produced nothing above threshold. It is returned without a
// provider call.
const NoRelevantContentAnswer = "I couldn't find any relevant information in the transcripts to answer your question."

const systemPrompt = `You are a helpful assistant that answers questions based on video transcript content.

Rules:
- Only answer based on the provided context
- If the context doesn't contain relevant information, say so
- Cite sources when possible (e.g., "According to Source 1...")
- Be concise but thorough
- If you're unsure, express uncertainty`

const defaultMaxAnswerTokens = 1000

// Source is one citation of the answer.
type Source struct {
	TranscriptID uint64  `json:"transcript_id"` // Transcript the chunk came from.
	ChunkIndex   int     `json:"chunk_index"`   // Position of the chunk in its transcript.
	Score        float32 `json:"score"`         // Similarity score of the chunk.
}

// Answer is the synthesized result of one question.
type Answer struct {
	Text       string   `json:"answer"`      // Generated answer text.
	Sources    []Source `json:"sources"`     // Citations in retrieval order.
	Confidence float32  `json:"confidence"`  // Retrieval confidence in [0,1].
	Model      string   `json:"model"`       // Model that served the completion, empty when short-circuited.
	ChunksUsed int      `json:"chunks_used"` // Number of chunks placed in the prompt.
}

// Completer is the slice of the provider gateway the synthesizer needs.
type Completer interface {
	Complete(ctx context.Context, providerName, baseURL string, req provider.CompletionRequest) (provider.CompletionResponse, error)
}

// Synthesizer composes prompts and parses completions. It never
// substitutes providers on failure; ProviderError surfaces to the caller.
type Synthesizer struct {
	gateway Completer
}

// New builds a Synthesizer over the given gateway.
func New(gateway Completer) *Synthesizer {
	return &Synthesizer{gateway: gateway}
}

// Answer generates a grounded answer for the question using the
// conversation's provider settings. Empty chunks short-circuit to the
// deterministic no-content answer with confidence 0 and no provider call.
func (s *Synthesizer) Answer(ctx context.Context, conv *models.Conversation, question string, chunks []vectorstore.Match, confidence float32) (Answer, error) {
	if len(chunks) == 0 {
		return Answer{
			Text:       NoRelevantContentAnswer,
			Sources:    []Source{},
			Confidence: 0,
		}, nil
	}

	req := provider.CompletionRequest{
		Model:        conv.Model,
		Temperature:  conv.Temperature,
		SystemPrompt: systemPrompt,
		Prompt:       buildPrompt(question, chunks),
		MaxTokens:    defaultMaxAnswerTokens,
	}
	resp, err := s.gateway.Complete(ctx, conv.Provider, conv.BaseURL, req)
	if err != nil {
		return Answer{}, err
	}

	sources := make([]Source, len(chunks))
	for i, chunk := range chunks {
		sources[i] = Source{
			TranscriptID: chunk.TranscriptID,
			ChunkIndex:   chunk.SequenceIndex,
			Score:        chunk.Score,
		}
	}
	return Answer{
		Text:       strings.TrimSpace(resp.Content),
		Sources:    sources,
		Confidence: confidence,
		Model:      resp.Model,
		ChunksUsed: len(chunks),
	}, nil
}

// buildPrompt concatenates chunk texts under numbered source tags and
// appends the question.
func buildPrompt(question string, chunks []vectorstore.Match) string {
	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		parts[i] = fmt.Sprintf("[Source %d: %d]\n%s", i+1, chunk.TranscriptID, chunk.Text)
	}
	context := strings.Join(parts, "\n\n---\n\n")
	return fmt.Sprintf("Context from transcripts:\n\n%s\n\n---\n\nQuestion: %s\n\nAnswer:", context, question)
}
