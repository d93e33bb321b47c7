package retriever

import (
	"context"
	"fmt"

	"github.com/transcript-buddy/transcriptbuddy/internal/embedding"
	"github.com/transcript-buddy/transcriptbuddy/internal/settings"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// Result holds the thresholded candidates for one query plus an overall
// confidence in [0,1]. Empty Matches with Confidence 0 means no chunk in
// the conversation cleared the score threshold.
type Result struct {
	Matches    []vectorstore.Match // Ranked candidates, best first.
	Confidence float32             // Overall confidence derived from the top scores.
}

// Retriever embeds a query with the same embedder used for indexing and
// ranks the conversation's chunks against it.
type Retriever struct {
	embedder embedding.Embedder
	store    vectorstore.Store
}

// New builds a Retriever over the given embedder and vector store.
func New(embedder embedding.Embedder, store vectorstore.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns up to k chunks of the conversation scoring at or above
// minScore against the query, best first. When transcriptIDs is non-empty
// the search is restricted to those transcripts. The candidate pool asked
// of the store is larger than k so that threshold filtering does not
// starve the result.
func (r *Retriever) Retrieve(ctx context.Context, conversationID uint64, query string, k int, minScore float32, transcriptIDs []uint64) (Result, error) {
	if k <= 0 {
		k = settings.DefaultSearchResults
	}
	if k > settings.MaxSearchResults {
		k = settings.MaxSearchResults
	}
	if minScore < 0 {
		minScore = 0
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	pool := k * settings.CandidatePoolFactor
	candidates, err := r.store.Search(ctx, conversationID, vectors[0], pool, transcriptIDs)
	if err != nil {
		return Result{}, fmt.Errorf("search index: %w", err)
	}

	matches := make([]vectorstore.Match, 0, k)
	for _, m := range candidates {
		if m.Score < minScore {
			continue
		}
		matches = append(matches, m)
		if len(matches) == k {
			break
		}
	}
	return Result{Matches: matches, Confidence: confidenceFor(matches)}, nil
}

// confidenceFor averages the top three scores and dampens the average by
// the spread between them, so a lone high score reads as less certain
// than a cluster of close high scores. Zero when nothing matched.
func confidenceFor(matches []vectorstore.Match) float32 {
	if len(matches) == 0 {
		return 0
	}
	n := len(matches)
	if n > 3 {
		n = 3
	}
	var sum float32
	for _, m := range matches[:n] {
		sum += m.Score
	}
	mean := sum / float32(n)
	spread := matches[0].Score - matches[n-1].Score
	confidence := mean - spread/4
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
