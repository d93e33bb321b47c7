package vectorstore

import (
	"context"
	"fmt"
	"sort"
)

// Entry is one embedded chunk to be stored in a conversation partition.
type Entry struct {
	TranscriptID  uint64    // Owning transcript.
	SequenceIndex int       // 0-based chunk position within the transcript.
	Vector        []float32 // Embedding vector.
	Text          string    // Chunk text, returned with search matches.
}

// Match is one search result, ordered by descending score with ties broken
// by lower transcript ID then lower sequence index.
type Match struct {
	TranscriptID  uint64  // Owning transcript.
	SequenceIndex int     // Chunk position within the transcript.
	Score         float32 // Normalized similarity in [0,1].
	Text          string  // Chunk text.
}

// SortMatches orders matches by descending score, then lower transcript ID,
// then lower sequence index. Backends re-sort server results with it so
// tie-breaks stay deterministic regardless of the server's internal order.
func SortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].TranscriptID != matches[j].TranscriptID {
			return matches[i].TranscriptID < matches[j].TranscriptID
		}
		return matches[i].SequenceIndex < matches[j].SequenceIndex
	})
}

// Store maintains one logical vector collection per conversation. Writes to a
// conversation partition are serialized; searches observe committed snapshots
// only and never a half-applied insert or swap.
type Store interface {
	// Dimension returns the fixed vector dimensionality of this store.
	Dimension() int
	// Insert stores all chunks of a transcript as one atomic unit. The
	// transcript must not already be present; reindexing uses Swap.
	Insert(ctx context.Context, conversationID, transcriptID uint64, entries []Entry) error
	// Swap atomically replaces a transcript's chunk set. Searches see the
	// fully-old or fully-new set, never a mix.
	Swap(ctx context.Context, conversationID, transcriptID uint64, entries []Entry) error
	// Delete removes all vectors tied to a transcript. Deleting an absent
	// transcript is a no-op.
	Delete(ctx context.Context, conversationID, transcriptID uint64) error
	// DropConversation removes the whole conversation partition.
	DropConversation(ctx context.Context, conversationID uint64) error
	// Search returns up to k matches within the conversation partition,
	// optionally restricted to the given transcript IDs.
	Search(ctx context.Context, conversationID uint64, vector []float32, k int, transcriptIDs []uint64) ([]Match, error)
}

// IndexConsistencyError reports a conversation partition in an unexpected
// state. It is fatal to the operation and must not be swallowed: serving a
// stale or partial index silently corrupts answers.
type IndexConsistencyError struct {
	ConversationID uint64
	TranscriptID   uint64
	Reason         string
}

// Error implements the error interface.
func (e *IndexConsistencyError) Error() string {
	return fmt.Sprintf("index consistency error (conversation %d, transcript %d): %s",
		e.ConversationID, e.TranscriptID, e.Reason)
}
