package pinecone

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pc "github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// Store keeps each conversation in its own Pinecone namespace so that
// DropConversation maps to a namespace wipe and searches never cross
// conversation boundaries.
type Store struct {
	client    *pc.Client
	host      string
	dimension int

	mu      sync.Mutex
	writeMu map[uint64]*sync.Mutex
}

// Config parameterizes a Pinecone Store.
type Config struct {
	APIKey    string
	IndexName string
	Dimension int
}

// NewStore creates the client and resolves the index host.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("pinecone: invalid dimension")
	}
	client, err := pc.NewClient(pc.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone: create client: %w", err)
	}
	idx, err := client.DescribeIndex(ctx, cfg.IndexName)
	if err != nil {
		return nil, fmt.Errorf("pinecone: describe index %q: %w", cfg.IndexName, err)
	}
	return &Store{
		client:    client,
		host:      idx.Host,
		dimension: cfg.Dimension,
		writeMu:   make(map[uint64]*sync.Mutex),
	}, nil
}

// Dimension returns the fixed vector dimensionality.
func (s *Store) Dimension() int { return s.dimension }

func namespaceFor(conversationID uint64) string {
	return fmt.Sprintf("conv-%d", conversationID)
}

func (s *Store) conversationLock(conversationID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu := s.writeMu[conversationID]
	if mu == nil {
		mu = &sync.Mutex{}
		s.writeMu[conversationID] = mu
	}
	return mu
}

func (s *Store) index(conversationID uint64) (*pc.IndexConnection, error) {
	return s.client.Index(pc.NewIndexConnParams{
		Host:      s.host,
		Namespace: namespaceFor(conversationID),
	})
}

// Insert stores all chunks of a transcript.
func (s *Store) Insert(ctx context.Context, conversationID, transcriptID uint64, entries []vectorstore.Entry) error {
	return s.Swap(ctx, conversationID, transcriptID, entries)
}

// Swap replaces a transcript's vectors: the new batch is upserted first,
// then vectors of the transcript carrying an older batch tag are removed.
func (s *Store) Swap(ctx context.Context, conversationID, transcriptID uint64, entries []vectorstore.Entry) error {
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	idx, err := s.index(conversationID)
	if err != nil {
		return fmt.Errorf("pinecone: connect index: %w", err)
	}

	batch := uuid.NewString()
	if len(entries) > 0 {
		vectors := make([]*pc.Vector, len(entries))
		for i, entry := range entries {
			if len(entry.Vector) != s.dimension {
				return &vectorstore.IndexConsistencyError{
					ConversationID: conversationID,
					TranscriptID:   transcriptID,
					Reason:         "vector dimension mismatch",
				}
			}
			meta, errMeta := structpb.NewStruct(map[string]any{
				"transcript_id":  float64(entry.TranscriptID),
				"sequence_index": float64(entry.SequenceIndex),
				"text":           entry.Text,
				"batch":          batch,
			})
			if errMeta != nil {
				return fmt.Errorf("pinecone: build metadata: %w", errMeta)
			}
			vectors[i] = &pc.Vector{
				Id:       uuid.NewString(),
				Values:   entry.Vector,
				Metadata: meta,
			}
		}
		if _, err := idx.UpsertVectors(ctx, vectors); err != nil {
			return fmt.Errorf("pinecone: upsert: %w", err)
		}
	}

	filter, errFilter := structpb.NewStruct(map[string]any{
		"transcript_id": map[string]any{"$eq": float64(transcriptID)},
		"batch":         map[string]any{"$ne": batch},
	})
	if errFilter != nil {
		return fmt.Errorf("pinecone: build filter: %w", errFilter)
	}
	if err := idx.DeleteVectorsByFilter(ctx, filter); err != nil {
		return fmt.Errorf("pinecone: delete stale vectors: %w", err)
	}
	return nil
}

// Delete removes all vectors of a transcript.
func (s *Store) Delete(ctx context.Context, conversationID, transcriptID uint64) error {
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	idx, err := s.index(conversationID)
	if err != nil {
		return fmt.Errorf("pinecone: connect index: %w", err)
	}
	filter, errFilter := structpb.NewStruct(map[string]any{
		"transcript_id": map[string]any{"$eq": float64(transcriptID)},
	})
	if errFilter != nil {
		return fmt.Errorf("pinecone: build filter: %w", errFilter)
	}
	if err := idx.DeleteVectorsByFilter(ctx, filter); err != nil {
		return fmt.Errorf("pinecone: delete: %w", err)
	}
	return nil
}

// DropConversation wipes the conversation namespace.
func (s *Store) DropConversation(ctx context.Context, conversationID uint64) error {
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	idx, err := s.index(conversationID)
	if err != nil {
		return fmt.Errorf("pinecone: connect index: %w", err)
	}
	if err := idx.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("pinecone: drop namespace: %w", err)
	}
	return nil
}

// Search queries the conversation namespace, optionally restricted to a
// set of transcripts.
func (s *Store) Search(ctx context.Context, conversationID uint64, vector []float32, k int, transcriptIDs []uint64) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	idx, err := s.index(conversationID)
	if err != nil {
		return nil, fmt.Errorf("pinecone: connect index: %w", err)
	}

	req := &pc.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(k),
		IncludeMetadata: true,
	}
	if len(transcriptIDs) > 0 {
		ids := make([]any, len(transcriptIDs))
		for i, id := range transcriptIDs {
			ids[i] = float64(id)
		}
		filter, errFilter := structpb.NewStruct(map[string]any{
			"transcript_id": map[string]any{"$in": ids},
		})
		if errFilter != nil {
			return nil, fmt.Errorf("pinecone: build filter: %w", errFilter)
		}
		req.MetadataFilter = filter
	}

	resp, err := idx.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pinecone: query: %w", err)
	}

	matches := make([]vectorstore.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil {
			continue
		}
		match := vectorstore.Match{Score: clampScore(m.Score)}
		if meta := m.Vector.Metadata; meta != nil {
			fields := meta.GetFields()
			if v, ok := fields["transcript_id"]; ok {
				match.TranscriptID = uint64(v.GetNumberValue())
			}
			if v, ok := fields["sequence_index"]; ok {
				match.SequenceIndex = int(v.GetNumberValue())
			}
			if v, ok := fields["text"]; ok {
				match.Text = v.GetStringValue()
			}
		}
		matches = append(matches, match)
	}

	vectorstore.SortMatches(matches)
	return matches, nil
}

func clampScore(score float32) float32 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
