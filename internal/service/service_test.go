package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/transcript-buddy/transcriptbuddy/internal/chunker"
	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
	"github.com/transcript-buddy/transcriptbuddy/internal/retriever"
	"github.com/transcript-buddy/transcriptbuddy/internal/synthesizer"
	"github.com/transcript-buddy/transcriptbuddy/internal/tiers"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore/memory"
)

// keywordEmbedder maps texts onto a 3-dimensional space by keyword so
// that relevance is deterministic in tests.
type keywordEmbedder struct{}

func (keywordEmbedder) Name() string   { return "keyword" }
func (keywordEmbedder) Dimension() int { return 3 }

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "machine learning") || strings.Contains(lower, "topics"):
			out[i] = []float32{1, 0, 0}
		case strings.Contains(lower, "cooking"):
			out[i] = []float32{0, 1, 0}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

// stubGateway answers every completion with a fixed response.
type stubGateway struct {
	calls int
}

func (g *stubGateway) Complete(_ context.Context, _, _ string, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
	g.calls++
	return provider.CompletionResponse{Content: "The transcript discusses AI and machine learning.", Model: "gpt-4"}, nil
}

type testEnv struct {
	db            *gorm.DB
	conversations *Conversations
	transcripts   *Transcripts
	query         *Query
	gateway       *stubGateway
	userID        uint64
}

func newTestEnv(t *testing.T, tier tiers.Tier) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Transcript{}, &models.UsageRecord{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	user := models.User{Email: "tester@example.com", Tier: string(tier), Active: true}
	if errUser := db.Create(&user).Error; errUser != nil {
		t.Fatalf("seed user: %v", errUser)
	}

	store, errStore := memory.NewStore(3)
	if errStore != nil {
		t.Fatalf("NewStore: %v", errStore)
	}
	embedder := keywordEmbedder{}
	ledger := usage.NewLedger(db)
	gateway := &stubGateway{}

	return &testEnv{
		db:            db,
		conversations: NewConversations(db, ledger, store),
		transcripts:   NewTranscripts(db, ledger, chunker.New(0, 0), embedder, store),
		query:         NewQuery(db, ledger, retriever.New(embedder, store), synthesizer.New(gateway), nil, 0),
		gateway:       gateway,
		userID:        user.ID,
	}
}

func TestUploadThenQueryCitesFirstChunk(t *testing.T) {
	env := newTestEnv(t, tiers.TierFree)

	conv, err := env.conversations.Create(context.Background(), env.userID, "", ConversationSettings{})
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}
	if conv.Name != "Conversation 1" {
		t.Fatalf("expected auto-assigned name, got %q", conv.Name)
	}

	content := "Welcome to the show.\nToday we talk about AI and machine learning.\nThe topics discussed are broad.\nThanks for listening.\n"
	result, err := env.transcripts.Upload(context.Background(), env.userID, conv.ID, "episode.txt", []byte(content), true)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !result.Indexed || result.ChunkCount == 0 {
		t.Fatalf("expected indexed transcript, got %+v", result)
	}

	answer, err := env.query.Ask(context.Background(), env.userID, conv.ID, "What topics are discussed?", AskOptions{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text == "" || answer.Text == synthesizer.NoRelevantContentAnswer {
		t.Fatalf("expected a grounded answer, got %q", answer.Text)
	}
	found := false
	for _, src := range answer.Sources {
		if src.TranscriptID == result.Transcript.ID && src.ChunkIndex == 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected chunk 0 of transcript %d in sources, got %+v", result.Transcript.ID, answer.Sources)
	}
	if env.gateway.calls != 1 {
		t.Fatalf("expected one provider call, got %d", env.gateway.calls)
	}
}

func TestQueryEmptyConversationShortCircuits(t *testing.T) {
	env := newTestEnv(t, tiers.TierFree)

	conv, err := env.conversations.Create(context.Background(), env.userID, "empty", ConversationSettings{})
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}

	answer, err := env.query.Ask(context.Background(), env.userID, conv.ID, "What topics are discussed?", AskOptions{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != synthesizer.NoRelevantContentAnswer {
		t.Fatalf("expected the deterministic no-content answer, got %q", answer.Text)
	}
	if len(answer.Sources) != 0 || answer.Confidence != 0 {
		t.Fatalf("expected empty sources and zero confidence, got %+v", answer)
	}
	if env.gateway.calls != 0 {
		t.Fatalf("provider must not be called for an empty conversation, got %d calls", env.gateway.calls)
	}
}

func TestLockedConversationRejectsWrites(t *testing.T) {
	env := newTestEnv(t, tiers.TierFree)

	conv, err := env.conversations.Create(context.Background(), env.userID, "locked", ConversationSettings{})
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}
	if errLock := env.conversations.Lock(context.Background(), env.userID, conv.ID, "tier downgrade"); errLock != nil {
		t.Fatalf("Lock: %v", errLock)
	}

	_, err = env.transcripts.Upload(context.Background(), env.userID, conv.ID, "a.txt", []byte("some text"), false)
	if !errors.Is(err, ErrConversationLocked) {
		t.Fatalf("expected ErrConversationLocked on upload, got %v", err)
	}

	_, err = env.query.Ask(context.Background(), env.userID, conv.ID, "What topics are discussed?", AskOptions{})
	if !errors.Is(err, ErrConversationLocked) {
		t.Fatalf("expected ErrConversationLocked on query, got %v", err)
	}

	// Locked conversations stay readable.
	if _, errGet := env.conversations.Get(context.Background(), env.userID, conv.ID); errGet != nil {
		t.Fatalf("locked conversation must stay readable: %v", errGet)
	}

	if errUnlock := env.conversations.Unlock(context.Background(), env.userID, conv.ID); errUnlock != nil {
		t.Fatalf("Unlock: %v", errUnlock)
	}
	if _, errUpload := env.transcripts.Upload(context.Background(), env.userID, conv.ID, "a.txt", []byte("some text"), false); errUpload != nil {
		t.Fatalf("upload after unlock: %v", errUpload)
	}
}

func TestConversationQuotaScenario(t *testing.T) {
	env := newTestEnv(t, tiers.TierFree)

	limit := tiers.LimitsFor(tiers.TierFree).MaxConversations
	for i := 0; i < limit; i++ {
		if _, err := env.conversations.Create(context.Background(), env.userID, "", ConversationSettings{}); err != nil {
			t.Fatalf("Create %d: %v", i+1, err)
		}
	}

	_, err := env.conversations.Create(context.Background(), env.userID, "", ConversationSettings{})
	var quotaErr *usage.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quotaErr.Kind != "conversations" || quotaErr.Current != limit || quotaErr.Limit != limit {
		t.Fatalf("unexpected quota error: %+v", quotaErr)
	}
}

func TestDowngradeLocksNewestConversationsOverCount(t *testing.T) {
	env := newTestEnv(t, tiers.TierPro)

	var ids []uint64
	for i := 0; i < 5; i++ {
		conv, err := env.conversations.Create(context.Background(), env.userID, "", ConversationSettings{})
		if err != nil {
			t.Fatalf("Create %d: %v", i+1, err)
		}
		ids = append(ids, conv.ID)
	}

	limit := tiers.LimitsFor(tiers.TierFree).MaxConversations
	locked, err := env.conversations.ApplyDowngradeLocks(context.Background(), env.userID, tiers.TierFree)
	if err != nil {
		t.Fatalf("ApplyDowngradeLocks: %v", err)
	}
	if locked != len(ids)-limit {
		t.Fatalf("locked %d conversations, want %d", locked, len(ids)-limit)
	}

	var conversations []models.Conversation
	if errFind := env.db.Order("id ASC").Find(&conversations).Error; errFind != nil {
		t.Fatalf("load conversations: %v", errFind)
	}
	for i, conv := range conversations {
		wantLocked := i >= limit
		if conv.IsLocked != wantLocked {
			t.Fatalf("conversation %d locked = %v, want %v", conv.ID, conv.IsLocked, wantLocked)
		}
		if wantLocked && conv.LockReason == "" {
			t.Fatalf("conversation %d locked without a reason", conv.ID)
		}
	}
}

func TestUploadBadSubtitleLeavesTranscriptPending(t *testing.T) {
	env := newTestEnv(t, tiers.TierFree)

	conv, err := env.conversations.Create(context.Background(), env.userID, "", ConversationSettings{})
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}

	malformed := "1\n00:00:01,000 --> bogus\nHello there.\n"
	result, err := env.transcripts.Upload(context.Background(), env.userID, conv.ID, "bad.srt", []byte(malformed), true)
	var formatErr *chunker.ContentFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected ContentFormatError, got %v", err)
	}
	if result.Transcript == nil || result.Indexed {
		t.Fatalf("transcript should be persisted but pending, got %+v", result)
	}

	stored, errGet := env.transcripts.Get(context.Background(), env.userID, result.Transcript.ID)
	if errGet != nil {
		t.Fatalf("Get: %v", errGet)
	}
	if stored.Indexed {
		t.Fatal("transcript must stay pending after a format error")
	}
}

func TestReindexAllIsIdempotent(t *testing.T) {
	env := newTestEnv(t, tiers.TierFree)

	conv, err := env.conversations.Create(context.Background(), env.userID, "", ConversationSettings{})
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}
	content := "Today we talk about AI and machine learning topics in depth."
	if _, errUpload := env.transcripts.Upload(context.Background(), env.userID, conv.ID, "one.txt", []byte(content), true); errUpload != nil {
		t.Fatalf("Upload: %v", errUpload)
	}

	first, err := env.transcripts.ReindexAll(context.Background(), env.userID, conv.ID)
	if err != nil {
		t.Fatalf("ReindexAll: %v", err)
	}
	second, err := env.transcripts.ReindexAll(context.Background(), env.userID, conv.ID)
	if err != nil {
		t.Fatalf("ReindexAll again: %v", err)
	}
	if first != second {
		t.Fatalf("reindex must be idempotent: %d then %d chunks", first, second)
	}

	hits, err := env.query.Search(context.Background(), env.userID, conv.ID, "machine learning topics", 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected search hits after reindex")
	}
}

func TestDeleteTranscriptRemovesItsVectors(t *testing.T) {
	env := newTestEnv(t, tiers.TierFree)

	conv, err := env.conversations.Create(context.Background(), env.userID, "", ConversationSettings{})
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}
	keep, err := env.transcripts.Upload(context.Background(), env.userID, conv.ID, "keep.txt", []byte("cooking a great pasta dinner"), true)
	if err != nil {
		t.Fatalf("Upload keep: %v", err)
	}
	drop, err := env.transcripts.Upload(context.Background(), env.userID, conv.ID, "drop.txt", []byte("AI and machine learning topics"), true)
	if err != nil {
		t.Fatalf("Upload drop: %v", err)
	}

	if errDelete := env.transcripts.Delete(context.Background(), env.userID, drop.Transcript.ID); errDelete != nil {
		t.Fatalf("Delete: %v", errDelete)
	}

	hits, err := env.query.Search(context.Background(), env.userID, conv.ID, "machine learning topics", 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, hit := range hits {
		if hit.TranscriptID == drop.Transcript.ID {
			t.Fatalf("deleted transcript still searchable: %+v", hit)
		}
	}

	// Sibling transcript results stay intact.
	hits, err = env.query.Search(context.Background(), env.userID, conv.ID, "cooking pasta", 5, 0)
	if err != nil {
		t.Fatalf("Search sibling: %v", err)
	}
	found := false
	for _, hit := range hits {
		if hit.TranscriptID == keep.Transcript.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("sibling transcript should still be searchable")
	}
}

func TestClassifyQuery(t *testing.T) {
	if kind := classifyQuery("What topics are discussed?"); kind != usage.OpQuerySimple {
		t.Fatalf("expected simple, got %s", kind)
	}
	if kind := classifyQuery("Compare the speakers' positions on regulation"); kind != usage.OpQueryComplex {
		t.Fatalf("expected complex, got %s", kind)
	}
}
