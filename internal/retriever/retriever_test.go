package retriever

import (
	"context"
	"testing"

	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore/memory"
)

// stubEmbedder maps known texts to fixed unit vectors so ranking is
// fully deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) Name() string   { return "stub" }
func (e *stubEmbedder) Dimension() int { return 3 }

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := e.vectors[text]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(3)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	entries := []vectorstore.Entry{
		{TranscriptID: 1, SequenceIndex: 0, Vector: []float32{1, 0, 0}, Text: "machine learning basics"},
		{TranscriptID: 1, SequenceIndex: 1, Vector: []float32{0.9, 0.1, 0}, Text: "neural networks"},
		{TranscriptID: 2, SequenceIndex: 0, Vector: []float32{0, 1, 0}, Text: "cooking pasta"},
	}
	if err := store.Insert(context.Background(), 7, 1, entries[:2]); err != nil {
		t.Fatalf("Insert transcript 1: %v", err)
	}
	if err := store.Insert(context.Background(), 7, 2, entries[2:]); err != nil {
		t.Fatalf("Insert transcript 2: %v", err)
	}
	return store
}

func TestRetrieveRanksAndThresholds(t *testing.T) {
	store := seedStore(t)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"what is machine learning": {1, 0, 0},
	}}
	r := New(emb, store)

	res, err := r.Retrieve(context.Background(), 7, "what is machine learning", 5, 0.5, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %d", len(res.Matches))
	}
	if res.Matches[0].TranscriptID != 1 || res.Matches[0].SequenceIndex != 0 {
		t.Fatalf("unexpected top match: %+v", res.Matches[0])
	}
	if res.Matches[0].Score < res.Matches[1].Score {
		t.Fatal("matches not ordered by descending score")
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", res.Confidence)
	}
}

func TestRetrieveRespectsTranscriptFilter(t *testing.T) {
	store := seedStore(t)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"anything": {1, 0, 0},
	}}
	r := New(emb, store)

	res, err := r.Retrieve(context.Background(), 7, "anything", 5, 0, []uint64{2})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, m := range res.Matches {
		if m.TranscriptID != 2 {
			t.Fatalf("match outside transcript filter: %+v", m)
		}
	}
}

func TestRetrieveEmptyResultHasZeroConfidence(t *testing.T) {
	store := seedStore(t)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"unrelated": {0, 0, 1},
	}}
	r := New(emb, store)

	res, err := r.Retrieve(context.Background(), 7, "unrelated", 5, 0.9, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(res.Matches))
	}
	if res.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", res.Confidence)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	store := seedStore(t)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"broad": {0.6, 0.6, 0.2},
	}}
	r := New(emb, store)

	res, err := r.Retrieve(context.Background(), 7, "broad", 1, 0, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected exactly 1 match, got %d", len(res.Matches))
	}
}

func TestConfidenceMonotonicInTopScore(t *testing.T) {
	low := confidenceFor([]vectorstore.Match{{Score: 0.5}, {Score: 0.45}, {Score: 0.4}})
	high := confidenceFor([]vectorstore.Match{{Score: 0.9}, {Score: 0.45}, {Score: 0.4}})
	if high <= low {
		t.Fatalf("confidence not monotonic in top score: %v <= %v", high, low)
	}
}

func TestConfidencePenalizesLoneOutlier(t *testing.T) {
	cluster := confidenceFor([]vectorstore.Match{{Score: 0.9}, {Score: 0.88}, {Score: 0.85}})
	outlier := confidenceFor([]vectorstore.Match{{Score: 0.9}, {Score: 0.3}, {Score: 0.2}})
	if outlier >= cluster {
		t.Fatalf("lone outlier should score lower confidence: %v >= %v", outlier, cluster)
	}
}
