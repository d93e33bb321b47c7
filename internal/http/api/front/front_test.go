package front

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/transcript-buddy/transcriptbuddy/internal/chunker"
	"github.com/transcript-buddy/transcriptbuddy/internal/config"
	"github.com/transcript-buddy/transcriptbuddy/internal/db"
	"github.com/transcript-buddy/transcriptbuddy/internal/embedding"
	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
	"github.com/transcript-buddy/transcriptbuddy/internal/retriever"
	"github.com/transcript-buddy/transcriptbuddy/internal/service"
	"github.com/transcript-buddy/transcriptbuddy/internal/synthesizer"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore/memory"
)

var testJWT = config.JWTConfig{Secret: "front-test-secret"}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	embedder := embedding.NewLocalEmbedder(64)
	store, errStore := memory.NewStore(64)
	if errStore != nil {
		t.Fatalf("new store: %v", errStore)
	}
	ledger := usage.NewLedger(conn)
	gateway := provider.NewGateway(provider.Config{})
	synth := synthesizer.New(gateway)

	svc := Services{
		Conversations: service.NewConversations(conn, ledger, store),
		Transcripts:   service.NewTranscripts(conn, ledger, chunker.New(500, 50), embedder, store),
		Query:         service.NewQuery(conn, ledger, retriever.New(embedder, store), synth, nil, 0),
		Ledger:        ledger,
		Gateway:       gateway,
	}

	r := gin.New()
	RegisterRoutes(r, conn, testJWT, svc)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode response: %v (%s)", errDecode, w.Body.String())
	}
	return out
}

func registerAndLogin(t *testing.T, r *gin.Engine, email string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/auth/register", "", gin.H{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200: %s", w.Code, w.Body.String())
	}
	token, _ := decodeBody(t, w)["token"].(string)
	if token == "" {
		t.Fatal("login returned empty token")
	}
	return token
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	r := newTestRouter(t)
	registerAndLogin(t, r, "dup@example.com")

	w := doJSON(t, r, http.MethodPost, "/v1/auth/register", "", gin.H{
		"email":    "dup@example.com",
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", w.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	r := newTestRouter(t)
	registerAndLogin(t, r, "badpass@example.com")

	w := doJSON(t, r, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email":    "badpass@example.com",
		"password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", w.Code)
	}
}

func TestConversationRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/v1/conversations", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d, want 401", w.Code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "convs@example.com")

	w := doJSON(t, r, http.MethodPost, "/v1/conversations", token, gin.H{"name": "Team Sync"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	if created["name"] != "Team Sync" {
		t.Fatalf("created name = %v, want Team Sync", created["name"])
	}
	if created["provider"] != "openai" {
		t.Fatalf("created provider = %v, want openai default", created["provider"])
	}
	id := uint64(created["id"].(float64))

	w = doJSON(t, r, http.MethodGet, "/v1/conversations", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	list := decodeBody(t, w)["conversations"].([]any)
	if len(list) != 1 {
		t.Fatalf("listed %d conversations, want 1", len(list))
	}

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/v1/conversations/%d", id), token, gin.H{
		"name":  "Renamed",
		"model": "gpt-4",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", w.Code, w.Body.String())
	}
	updated := decodeBody(t, w)
	if updated["name"] != "Renamed" || updated["model"] != "gpt-4" {
		t.Fatalf("update result = %v", updated)
	}

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/v1/conversations/%d", id), token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/v1/conversations/%d", id), token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", w.Code)
	}
}

func TestCreateConversationRejectsTierProvider(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "tier@example.com")

	w := doJSON(t, r, http.MethodPost, "/v1/conversations", token, gin.H{"provider": "claude"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestConversationQuotaReturnsPaymentRequired(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "quota@example.com")

	for i := 0; i < 3; i++ {
		w := doJSON(t, r, http.MethodPost, "/v1/conversations", token, gin.H{})
		if w.Code != http.StatusCreated {
			t.Fatalf("create %d status = %d, want 201", i, w.Code)
		}
	}
	w := doJSON(t, r, http.MethodPost, "/v1/conversations", token, gin.H{})
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("over-quota status = %d, want 402: %s", w.Code, w.Body.String())
	}
}

func TestUploadAndSearch(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "upload@example.com")

	w := doJSON(t, r, http.MethodPost, "/v1/conversations", token, gin.H{})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	id := uint64(decodeBody(t, w)["id"].(float64))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, errPart := mw.CreateFormFile("file", "notes.txt")
	if errPart != nil {
		t.Fatalf("create form file: %v", errPart)
	}
	_, _ = part.Write([]byte("The meeting covered quarterly planning and hiring goals."))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/conversations/%d/transcripts", id), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	uploaded := decodeBody(t, rec)
	if uploaded["indexed"] != true {
		t.Fatalf("upload not indexed: %v", uploaded)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/v1/conversations/%d/search", id), token, gin.H{
		"query": "quarterly planning meeting",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200: %s", w.Code, w.Body.String())
	}
	results := decodeBody(t, w)["results"].([]any)
	if len(results) == 0 {
		t.Fatal("search returned no results")
	}
}

func TestIndexMalformedSubtitleReturnsUnprocessable(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "badsrt@example.com")

	w := doJSON(t, r, http.MethodPost, "/v1/conversations", token, gin.H{})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	id := uint64(decodeBody(t, w)["id"].(float64))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, errPart := mw.CreateFormFile("file", "broken.srt")
	if errPart != nil {
		t.Fatalf("create form file: %v", errPart)
	}
	_, _ = part.Write([]byte("1\nnot a timestamp line\nHello there.\n"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/conversations/%d/transcripts?auto_index=false", id), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	uploaded := decodeBody(t, rec)
	if uploaded["indexed"] != false {
		t.Fatalf("deferred upload reported indexed: %v", uploaded)
	}
	transcriptID := uint64(uploaded["transcript"].(map[string]any)["id"].(float64))

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/v1/transcripts/%d/index", transcriptID), token, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("index status = %d, want 422: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["format"] != "srt" {
		t.Fatalf("expected srt format diagnostic, got %v", body)
	}

	// The failed index leaves the transcript pending.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/v1/transcripts/%d", transcriptID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if decodeBody(t, w)["indexed"] != false {
		t.Fatal("transcript should stay pending after a format error")
	}
}

func TestTiersAndProvidersListing(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "catalog@example.com")

	w := doJSON(t, r, http.MethodGet, "/v1/providers", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("providers status = %d, want 200", w.Code)
	}
	providers := decodeBody(t, w)["providers"].([]any)
	if len(providers) != 6 {
		t.Fatalf("listed %d providers, want 6", len(providers))
	}

	w = doJSON(t, r, http.MethodGet, "/v1/tiers", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tiers status = %d, want 200", w.Code)
	}
	entries := decodeBody(t, w)["tiers"].([]any)
	if len(entries) != 4 {
		t.Fatalf("listed %d tiers, want 4", len(entries))
	}
}

func TestDowngradeLocksOversizedConversations(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "downgrade@example.com")

	w := doJSON(t, r, http.MethodPost, "/v1/account/downgrade/validate", token, gin.H{"tier": "free"})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["allowed"] != true {
		t.Fatal("empty account should downgrade cleanly")
	}

	w = doJSON(t, r, http.MethodPost, "/v1/account/downgrade", token, gin.H{"tier": "free"})
	if w.Code != http.StatusOK {
		t.Fatalf("downgrade status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["tier"] != "FREE" {
		t.Fatalf("downgrade tier = %v, want FREE", body["tier"])
	}
}

func TestUsageSummaryValidatesPeriod(t *testing.T) {
	r := newTestRouter(t)
	token := registerAndLogin(t, r, "usage@example.com")

	w := doJSON(t, r, http.MethodGet, "/v1/usage/summary?period=not-a-period", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad period status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/usage/summary", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "period") {
		t.Fatalf("summary body missing period: %s", w.Body.String())
	}
}
