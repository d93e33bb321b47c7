package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// Store is a minimal REST client to Qdrant holding one collection, with
// conversation and transcript IDs carried in point payloads for filtering.
// It assumes cosine distance and creates the collection if missing.
type Store struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu      sync.Mutex
	writeMu map[uint64]*sync.Mutex
}

// Config parameterizes a Qdrant Store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// NewStore constructs the client and ensures the collection exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("qdrant: invalid dimension")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	s := &Store{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
		writeMu:    make(map[uint64]*sync.Mutex),
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     cfg.Dimension,
			"distance": "Cosine",
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		return nil, err
	}
	return s, nil
}

// Dimension returns the fixed vector dimensionality.
func (s *Store) Dimension() int { return s.dimension }

// conversationLock serializes writes per conversation partition.
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

// Insert stores all chunks of a transcript as one upsert batch.
func (s *Store) Insert(ctx context.Context, conversationID, transcriptID uint64, entries []vectorstore.Entry) error {
	return s.Swap(ctx, conversationID, transcriptID, entries)
}

// Swap replaces a transcript's points: the new set is written first, then
// stale points (identified by an older batch tag) are deleted, so a search
// falls on either the complete old or complete new set.
func (s *Store) Swap(ctx context.Context, conversationID, transcriptID uint64, entries []vectorstore.Entry) error {
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	batch := uuid.NewString()
	if len(entries) > 0 {
		points := make([]map[string]any, len(entries))
		for i, entry := range entries {
			if len(entry.Vector) != s.dimension {
				return &vectorstore.IndexConsistencyError{
					ConversationID: conversationID,
					TranscriptID:   transcriptID,
					Reason:         "vector dimension mismatch",
				}
			}
			points[i] = map[string]any{
				"id":     uuid.NewString(),
				"vector": entry.Vector,
				"payload": map[string]any{
					"conversation_id": conversationID,
					"transcript_id":   entry.TranscriptID,
					"sequence_index":  entry.SequenceIndex,
					"text":            entry.Text,
					"batch":           batch,
				},
			}
		}
		body := map[string]any{"points": points}
		if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body); err != nil {
			return err
		}
	}

	// Drop every point of this transcript not written by this batch.
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "conversation_id", "match": map[string]any{"value": conversationID}},
			{"key": "transcript_id", "match": map[string]any{"value": transcriptID}},
		},
		"must_not": []map[string]any{
			{"key": "batch", "match": map[string]any{"value": batch}},
		},
	}
	return s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection),
		map[string]any{"filter": filter}, nil)
}

// Delete removes all points of a transcript.
func (s *Store) Delete(ctx context.Context, conversationID, transcriptID uint64) error {
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	filter := map[string]any{
		"must": []map[string]any{
			{"key": "conversation_id", "match": map[string]any{"value": conversationID}},
			{"key": "transcript_id", "match": map[string]any{"value": transcriptID}},
		},
	}
	return s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection),
		map[string]any{"filter": filter}, nil)
}

// DropConversation removes the whole conversation partition.
func (s *Store) DropConversation(ctx context.Context, conversationID uint64) error {
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	filter := map[string]any{
		"must": []map[string]any{
			{"key": "conversation_id", "match": map[string]any{"value": conversationID}},
		},
	}
	return s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection),
		map[string]any{"filter": filter}, nil)
}

// Search queries the collection scoped to the conversation partition.
func (s *Store) Search(ctx context.Context, conversationID uint64, vector []float32, k int, transcriptIDs []uint64) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	must := []map[string]any{
		{"key": "conversation_id", "match": map[string]any{"value": conversationID}},
	}
	if len(transcriptIDs) > 0 {
		values := make([]uint64, len(transcriptIDs))
		copy(values, transcriptIDs)
		must = append(must, map[string]any{"key": "transcript_id", "match": map[string]any{"any": values}})
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       map[string]any{"must": must},
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]vectorstore.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := vectorstore.Match{Score: clampScore(r.Score)}
		if v, ok := r.Payload["transcript_id"].(float64); ok {
			m.TranscriptID = uint64(v)
		}
		if v, ok := r.Payload["sequence_index"].(float64); ok {
			m.SequenceIndex = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			m.Text = v
		}
		matches = append(matches, m)
	}

	vectorstore.SortMatches(matches)
	return matches, nil
}

func clampScore(score float64) float32 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return float32(score)
}

func (s *Store) putJSON(ctx context.Context, url string, body any) error {
	data, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return fmt.Errorf("qdrant: marshal: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if errReq != nil {
		return fmt.Errorf("qdrant: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, errDo := s.client.Do(req)
	if errDo != nil {
		return errDo
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (s *Store) postJSON(ctx context.Context, url string, body any, out any) error {
	data, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return fmt.Errorf("qdrant: marshal: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if errReq != nil {
		return fmt.Errorf("qdrant: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, errDo := s.client.Do(req)
	if errDo != nil {
		return errDo
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
