package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// Store is an in-memory vector store using brute-force cosine similarity.
// Each conversation partition keeps an immutable snapshot that writers
// replace wholesale under a per-partition mutex, so searches never block on
// writes and never observe a half-applied insert or swap.
type Store struct {
	dimension int

	mu         sync.RWMutex
	partitions map[uint64]*partition
}

type partition struct {
	writeMu sync.Mutex
	snap    atomic.Pointer[snapshot]
}

// snapshot is immutable once published.
type snapshot struct {
	transcripts map[uint64][]vectorstore.Entry
}

// NewStore constructs a Store with a fixed vector dimensionality.
func NewStore(dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, errors.New("memory store: invalid dimension")
	}
	return &Store{
		dimension:  dimension,
		partitions: make(map[uint64]*partition),
	}, nil
}

// Dimension returns the fixed vector dimensionality.
func (s *Store) Dimension() int { return s.dimension }

func (s *Store) partitionFor(conversationID uint64, create bool) *partition {
	s.mu.RLock()
	p := s.partitions[conversationID]
	s.mu.RUnlock()
	if p != nil || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p = s.partitions[conversationID]; p == nil {
		p = &partition{}
		p.snap.Store(&snapshot{transcripts: map[uint64][]vectorstore.Entry{}})
		s.partitions[conversationID] = p
	}
	return p
}

func (s *Store) checkEntries(conversationID, transcriptID uint64, entries []vectorstore.Entry) error {
	for _, entry := range entries {
		if entry.TranscriptID != transcriptID {
			return &vectorstore.IndexConsistencyError{
				ConversationID: conversationID,
				TranscriptID:   transcriptID,
				Reason:         "entry belongs to a different transcript",
			}
		}
		if len(entry.Vector) != s.dimension {
			return &vectorstore.IndexConsistencyError{
				ConversationID: conversationID,
				TranscriptID:   transcriptID,
				Reason:         "vector dimension mismatch",
			}
		}
	}
	return nil
}

// Insert stores all chunks of a transcript atomically. The transcript must
// not already be present in the partition.
func (s *Store) Insert(_ context.Context, conversationID, transcriptID uint64, entries []vectorstore.Entry) error {
	if errCheck := s.checkEntries(conversationID, transcriptID, entries); errCheck != nil {
		return errCheck
	}
	p := s.partitionFor(conversationID, true)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	current := p.snap.Load()
	if _, exists := current.transcripts[transcriptID]; exists {
		return &vectorstore.IndexConsistencyError{
			ConversationID: conversationID,
			TranscriptID:   transcriptID,
			Reason:         "transcript already indexed",
		}
	}
	p.snap.Store(current.with(transcriptID, entries))
	return nil
}

// Swap atomically replaces a transcript's chunk set, creating it when absent.
func (s *Store) Swap(_ context.Context, conversationID, transcriptID uint64, entries []vectorstore.Entry) error {
	if errCheck := s.checkEntries(conversationID, transcriptID, entries); errCheck != nil {
		return errCheck
	}
	p := s.partitionFor(conversationID, true)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.snap.Store(p.snap.Load().with(transcriptID, entries))
	return nil
}

// Delete removes a transcript's vectors. Absent transcripts are a no-op.
func (s *Store) Delete(_ context.Context, conversationID, transcriptID uint64) error {
	p := s.partitionFor(conversationID, false)
	if p == nil {
		return nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	current := p.snap.Load()
	if _, exists := current.transcripts[transcriptID]; !exists {
		return nil
	}
	p.snap.Store(current.without(transcriptID))
	return nil
}

// DropConversation removes the whole partition.
func (s *Store) DropConversation(_ context.Context, conversationID uint64) error {
	s.mu.Lock()
	delete(s.partitions, conversationID)
	s.mu.Unlock()
	return nil
}

// Search scans the partition snapshot and returns the top k matches by
// cosine similarity clamped to [0,1], ties broken by lower transcript ID
// then lower sequence index.
func (s *Store) Search(_ context.Context, conversationID uint64, vector []float32, k int, transcriptIDs []uint64) ([]vectorstore.Match, error) {
	if len(vector) != s.dimension {
		return nil, errors.New("memory store: query vector dimension mismatch")
	}
	if k <= 0 {
		return nil, nil
	}
	p := s.partitionFor(conversationID, false)
	if p == nil {
		return nil, nil
	}
	snap := p.snap.Load()

	var allowed map[uint64]bool
	if len(transcriptIDs) > 0 {
		allowed = make(map[uint64]bool, len(transcriptIDs))
		for _, id := range transcriptIDs {
			allowed[id] = true
		}
	}

	var matches []vectorstore.Match
	for transcriptID, entries := range snap.transcripts {
		if allowed != nil && !allowed[transcriptID] {
			continue
		}
		for _, entry := range entries {
			matches = append(matches, vectorstore.Match{
				TranscriptID:  entry.TranscriptID,
				SequenceIndex: entry.SequenceIndex,
				Score:         cosineScore(vector, entry.Vector),
				Text:          entry.Text,
			})
		}
	}

	vectorstore.SortMatches(matches)

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (sn *snapshot) with(transcriptID uint64, entries []vectorstore.Entry) *snapshot {
	next := &snapshot{transcripts: make(map[uint64][]vectorstore.Entry, len(sn.transcripts)+1)}
	for id, existing := range sn.transcripts {
		if id != transcriptID {
			next.transcripts[id] = existing
		}
	}
	copied := make([]vectorstore.Entry, len(entries))
	copy(copied, entries)
	next.transcripts[transcriptID] = copied
	return next
}

func (sn *snapshot) without(transcriptID uint64) *snapshot {
	next := &snapshot{transcripts: make(map[uint64][]vectorstore.Entry, len(sn.transcripts))}
	for id, existing := range sn.transcripts {
		if id != transcriptID {
			next.transcripts[id] = existing
		}
	}
	return next
}

// cosineScore computes cosine similarity clamped into [0,1]. Negative
// similarity carries no retrieval value and maps to 0.
func cosineScore(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return float32(cos)
}
