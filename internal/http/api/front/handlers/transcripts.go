package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/service"
)

// maxUploadBytes caps a single transcript upload at 32 MB. Tier size
// limits are enforced separately by the usage ledger.
const maxUploadBytes = 32 << 20

// TranscriptHandler serves transcript ingestion and indexing endpoints.
type TranscriptHandler struct {
	svc *service.Transcripts
}

// NewTranscriptHandler constructs a TranscriptHandler.
func NewTranscriptHandler(svc *service.Transcripts) *TranscriptHandler {
	return &TranscriptHandler{svc: svc}
}

func transcriptJSON(t *models.Transcript) gin.H {
	return gin.H{
		"id":              t.ID,
		"conversation_id": t.ConversationID,
		"filename":        t.Filename,
		"format":          t.Format,
		"size_bytes":      t.SizeBytes,
		"indexed":         t.Indexed,
		"chunk_count":     t.ChunkCount,
		"metadata":        t.Metadata,
		"uploaded_at":     t.UploadedAt,
	}
}

// Upload ingests one transcript file into a conversation. The file comes
// in as multipart form data under the "file" field; auto_index=false
// defers chunking and embedding to an explicit index call.
func (h *TranscriptHandler) Upload(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	fileHeader, errFile := c.FormFile("file")
	if errFile != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, errOpen := fileHeader.Open()
	if errOpen != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer func() { _ = file.Close() }()

	content, errRead := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	if len(content) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	autoIndex := !strings.EqualFold(c.Query("auto_index"), "false")
	result, errUpload := h.svc.Upload(c.Request.Context(), currentUserID(c), conversationID, fileHeader.Filename, content, autoIndex)
	if errUpload != nil {
		// A failed auto-index still persisted the transcript; report the
		// stored row alongside the indexing failure.
		if result.Transcript != nil {
			c.JSON(http.StatusCreated, gin.H{
				"transcript":  transcriptJSON(result.Transcript),
				"indexed":     false,
				"chunk_count": 0,
				"error":       errUpload.Error(),
			})
			return
		}
		respondServiceError(c, errUpload)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"transcript":  transcriptJSON(result.Transcript),
		"indexed":     result.Indexed,
		"chunk_count": result.ChunkCount,
	})
}

// List returns the conversation's transcripts without their raw content.
func (h *TranscriptHandler) List(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	transcripts, errList := h.svc.List(c.Request.Context(), currentUserID(c), conversationID)
	if errList != nil {
		respondServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(transcripts))
	for i := range transcripts {
		out = append(out, transcriptJSON(&transcripts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transcripts": out})
}

// Get returns one transcript including its raw content.
func (h *TranscriptHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	transcript, errGet := h.svc.Get(c.Request.Context(), currentUserID(c), id)
	if errGet != nil {
		respondServiceError(c, errGet)
		return
	}
	out := transcriptJSON(transcript)
	out["content"] = transcript.Content
	c.JSON(http.StatusOK, out)
}

// Index chunks and embeds a pending transcript, or atomically rebuilds
// an already indexed one.
func (h *TranscriptHandler) Index(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	chunkCount, errIndex := h.svc.Index(c.Request.Context(), currentUserID(c), id)
	if errIndex != nil {
		respondServiceError(c, errIndex)
		return
	}
	c.JSON(http.StatusOK, gin.H{"indexed": true, "chunk_count": chunkCount})
}

// Reindex rebuilds the vector index for every transcript in the
// conversation. Searches keep working against the old vectors until each
// transcript's swap commits.
func (h *TranscriptHandler) Reindex(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	count, errReindex := h.svc.ReindexAll(c.Request.Context(), currentUserID(c), conversationID)
	if errReindex != nil {
		respondServiceError(c, errReindex)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reindexed": count})
}

// Delete removes a transcript and its vectors.
func (h *TranscriptHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.svc.Delete(c.Request.Context(), currentUserID(c), id); errDelete != nil {
		respondServiceError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}
