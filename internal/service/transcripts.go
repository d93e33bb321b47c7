package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/chunker"
	"github.com/transcript-buddy/transcriptbuddy/internal/embedding"
	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// UploadResult is the outcome of one ingestion call.
type UploadResult struct {
	Transcript *models.Transcript // Persisted transcript row.
	Indexed    bool               // Whether the transcript made it into the vector index.
	ChunkCount int                // Number of chunks indexed, 0 when pending.
}

// Transcripts handles ingestion, indexing, and removal of transcript
// files within a conversation.
type Transcripts struct {
	db       *gorm.DB
	ledger   *usage.Ledger
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    vectorstore.Store
}

// NewTranscripts constructs the transcript service.
func NewTranscripts(db *gorm.DB, ledger *usage.Ledger, ch *chunker.Chunker, embedder embedding.Embedder, store vectorstore.Store) *Transcripts {
	return &Transcripts{db: db, ledger: ledger, chunker: ch, embedder: embedder, store: store}
}

func (s *Transcripts) conversationForWrite(ctx context.Context, userID, conversationID uint64) (*models.Conversation, error) {
	var conv models.Conversation
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", errFind)
	}
	if conv.IsLocked {
		return nil, ErrConversationLocked
	}
	return &conv, nil
}

// Upload validates and persists a transcript file, then indexes it when
// autoIndex is set. A content format failure leaves the transcript
// persisted but pending; the caller sees the error and the stored row.
func (s *Transcripts) Upload(ctx context.Context, userID, conversationID uint64, filename string, content []byte, autoIndex bool) (UploadResult, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return UploadResult{}, &ValidationError{Field: "filename", Message: "must not be empty"}
	}
	format, ok := chunker.DetectFormat(filename)
	if !ok {
		return UploadResult{}, &ValidationError{Field: "filename", Message: "unsupported file type, expected .txt, .srt, .vtt or .json"}
	}
	if len(content) == 0 {
		return UploadResult{}, &ValidationError{Field: "content", Message: "file is empty"}
	}

	conv, errConv := s.conversationForWrite(ctx, userID, conversationID)
	if errConv != nil {
		return UploadResult{}, errConv
	}

	meta, _ := json.Marshal(map[string]any{"original_filename": filename})
	transcript := models.Transcript{
		ConversationID: conv.ID,
		Filename:       filename,
		Format:         string(format),
		SizeBytes:      int64(len(content)),
		Content:        string(content),
		Metadata:       datatypes.JSON(meta),
		UploadedAt:     time.Now().UTC(),
	}

	errReserve := s.ledger.ReserveUpload(ctx, userID, conv.ID, int64(len(content)), func(tx *gorm.DB) error {
		return tx.Create(&transcript).Error
	})
	if errReserve != nil {
		return UploadResult{}, errReserve
	}

	result := UploadResult{Transcript: &transcript}
	if !autoIndex {
		return result, nil
	}

	chunkCount, errIndex := s.index(ctx, &transcript, false)
	if errIndex != nil {
		// The transcript stays pending; the user can fix the file and
		// re-upload, or trigger indexing again.
		log.WithError(errIndex).WithField("transcript_id", transcript.ID).Warn("auto-index failed, transcript left pending")
		return result, errIndex
	}
	result.Indexed = true
	result.ChunkCount = chunkCount
	return result, nil
}

// index chunks, embeds, and stores one transcript, then marks the row
// indexed. With swap set the new vectors atomically replace the old set.
func (s *Transcripts) index(ctx context.Context, transcript *models.Transcript, swap bool) (int, error) {
	chunks, errChunk := s.chunker.Chunk(transcript.Content, chunker.Format(transcript.Format))
	if errChunk != nil {
		return 0, errChunk
	}

	entries := make([]vectorstore.Entry, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}
		vectors, errEmbed := s.embedder.Embed(ctx, texts)
		if errEmbed != nil {
			return 0, fmt.Errorf("embed chunks: %w", errEmbed)
		}
		for i, chunk := range chunks {
			entries[i] = vectorstore.Entry{
				TranscriptID:  transcript.ID,
				SequenceIndex: chunk.Index,
				Vector:        vectors[i],
				Text:          chunk.Text,
			}
		}
	}

	var errStore error
	if swap {
		errStore = s.store.Swap(ctx, transcript.ConversationID, transcript.ID, entries)
	} else {
		errStore = s.store.Insert(ctx, transcript.ConversationID, transcript.ID, entries)
	}
	if errStore != nil {
		return 0, errStore
	}

	errSave := s.db.WithContext(ctx).
		Model(&models.Transcript{}).
		Where("id = ?", transcript.ID).
		Updates(map[string]any{
			"indexed":     true,
			"chunk_count": len(chunks),
			"updated_at":  time.Now().UTC(),
		}).Error
	if errSave != nil {
		return 0, fmt.Errorf("mark transcript indexed: %w", errSave)
	}
	transcript.Indexed = true
	transcript.ChunkCount = len(chunks)
	return len(chunks), nil
}

// Index indexes a pending transcript. Re-running it on an already
// indexed transcript swaps the vectors in place.
func (s *Transcripts) Index(ctx context.Context, userID, transcriptID uint64) (int, error) {
	transcript, errGet := s.Get(ctx, userID, transcriptID)
	if errGet != nil {
		return 0, errGet
	}
	return s.index(ctx, transcript, transcript.Indexed)
}

// ReindexAll re-chunks and re-embeds every transcript of a conversation.
// Each transcript's old vectors stay searchable until its new set
// commits, so the conversation never reads as half-indexed.
func (s *Transcripts) ReindexAll(ctx context.Context, userID, conversationID uint64) (int, error) {
	if _, errConv := s.conversationForWrite(ctx, userID, conversationID); errConv != nil {
		return 0, errConv
	}

	var transcripts []models.Transcript
	if errFind := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&transcripts).Error; errFind != nil {
		return 0, fmt.Errorf("list transcripts: %w", errFind)
	}

	total := 0
	for i := range transcripts {
		count, errIndex := s.index(ctx, &transcripts[i], true)
		if errIndex != nil {
			return total, fmt.Errorf("reindex transcript %d: %w", transcripts[i].ID, errIndex)
		}
		total += count
	}
	log.WithFields(log.Fields{"conversation_id": conversationID, "chunks": total}).Info("conversation reindexed")
	return total, nil
}

// List returns the conversation's transcripts without their content.
func (s *Transcripts) List(ctx context.Context, userID, conversationID uint64) ([]models.Transcript, error) {
	var conv models.Conversation
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", errFind)
	}

	var transcripts []models.Transcript
	if errList := s.db.WithContext(ctx).
		Omit("content").
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&transcripts).Error; errList != nil {
		return nil, fmt.Errorf("list transcripts: %w", errList)
	}
	return transcripts, nil
}

// Get loads one transcript owned by the user.
func (s *Transcripts) Get(ctx context.Context, userID, transcriptID uint64) (*models.Transcript, error) {
	var transcript models.Transcript
	errFind := s.db.WithContext(ctx).
		Joins("JOIN conversations ON conversations.id = transcripts.conversation_id").
		Where("transcripts.id = ? AND conversations.user_id = ?", transcriptID, userID).
		First(&transcript).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load transcript: %w", errFind)
	}
	return &transcript, nil
}

// Delete removes a transcript and its vectors. The vector delete is
// idempotent, so a pending transcript deletes cleanly too.
func (s *Transcripts) Delete(ctx context.Context, userID, transcriptID uint64) error {
	transcript, errGet := s.Get(ctx, userID, transcriptID)
	if errGet != nil {
		return errGet
	}

	if errDelete := s.db.WithContext(ctx).Delete(&models.Transcript{}, transcript.ID).Error; errDelete != nil {
		return fmt.Errorf("delete transcript: %w", errDelete)
	}
	if errVectors := s.store.Delete(ctx, transcript.ConversationID, transcript.ID); errVectors != nil {
		return fmt.Errorf("delete transcript vectors: %w", errVectors)
	}
	log.WithFields(log.Fields{"transcript_id": transcriptID}).Info("transcript deleted")
	return nil
}
