package chunker

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestChunkPlain_Empty(t *testing.T) {
	c := New(1000, 200)
	chunks, err := c.Chunk("   \n\t ", FormatText)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected zero chunks, got %d", len(chunks))
	}
}

func TestChunkPlain_Single(t *testing.T) {
	c := New(1000, 200)
	chunks, err := c.Chunk("Short transcript about AI.", FormatText)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].Start != 0 {
		t.Fatalf("unexpected chunk positions: %+v", chunks[0])
	}
	if chunks[0].End != len(chunks[0].Text) {
		t.Fatalf("end offset %d != text length %d", chunks[0].End, len(chunks[0].Text))
	}
}

func TestChunkPlain_ContentConserved(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	text := strings.TrimSpace(strings.Repeat(sentence, 120))

	c := New(500, 100)
	chunks, err := c.Chunk(text, FormatText)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Offsets must tile the text: first at 0, last at len, each next start
	// inside or adjacent to the previous span (the overlap).
	if chunks[0].Start != 0 {
		t.Fatalf("first chunk starts at %d", chunks[0].Start)
	}
	if chunks[len(chunks)-1].End != len(text) {
		t.Fatalf("last chunk ends at %d, want %d", chunks[len(chunks)-1].End, len(text))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.Index != i {
			t.Fatalf("chunk %d has index %d", i, cur.Index)
		}
		if cur.Start > prev.End {
			t.Fatalf("gap between chunk %d (end %d) and %d (start %d)", i-1, prev.End, i, cur.Start)
		}
		if cur.Start <= prev.Start {
			t.Fatalf("chunk %d does not advance: %d <= %d", i, cur.Start, prev.Start)
		}
		if string([]rune(text)[cur.Start:cur.End]) != cur.Text {
			t.Fatalf("chunk %d text does not match its offsets", i)
		}
	}
}

func TestChunkPlain_MultiByteRunesStayIntact(t *testing.T) {
	// No sentence or line boundaries, so every window splits at the raw
	// size limit. Each rune is three bytes wide.
	text := strings.Repeat("世", 1500)

	c := New(1000, 200)
	chunks, err := c.Chunk(text, FormatText)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the text to split, got %d chunks", len(chunks))
	}
	total := 0
	for i, ch := range chunks {
		if !utf8.ValidString(ch.Text) {
			t.Fatalf("chunk %d contains invalid UTF-8", i)
		}
		runes := utf8.RuneCountInString(ch.Text)
		if runes != ch.End-ch.Start {
			t.Fatalf("chunk %d spans %d runes but offsets cover %d", i, runes, ch.End-ch.Start)
		}
		total = ch.End
	}
	if total != 1500 {
		t.Fatalf("last chunk ends at rune %d, want 1500", total)
	}
}

func TestChunkPlain_SentenceBoundaryPreferred(t *testing.T) {
	// Two sentences; the window cuts mid-second-sentence but a boundary
	// exists past the midpoint, so the chunk should end at the boundary.
	text := strings.Repeat("a", 80) + ". " + strings.Repeat("b", 80)
	c := New(100, 10)
	chunks, err := c.Chunk(text, FormatText)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasSuffix(chunks[0].Text, ".") && !strings.HasSuffix(chunks[0].Text, ". ") {
		t.Fatalf("first chunk should break at sentence boundary, got %q", chunks[0].Text[len(chunks[0].Text)-10:])
	}
}

func TestChunkSRT_TimedChunks(t *testing.T) {
	content := `1
00:00:00,000 --> 00:00:02,500
Welcome to the show.

2
00:00:02,500 --> 00:00:05,000
Today we talk about AI and machine learning.
`
	c := New(1000, 200)
	chunks, err := c.Chunk(content, FormatSRT)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].StartTime != 0 {
		t.Fatalf("unexpected start time %s", chunks[0].StartTime)
	}
	if chunks[0].EndTime != 5*time.Second {
		t.Fatalf("unexpected end time %s", chunks[0].EndTime)
	}
	if !strings.Contains(chunks[0].Text, "machine learning") {
		t.Fatalf("cue text missing: %q", chunks[0].Text)
	}
}

func TestChunkSRT_MalformedTiming(t *testing.T) {
	content := "1\n00:00:xx,000 --> 00:00:02,000\nhello\n"
	c := New(1000, 200)
	_, err := c.Chunk(content, FormatSRT)
	var cfe *ContentFormatError
	if !errors.As(err, &cfe) {
		t.Fatalf("expected ContentFormatError, got %v", err)
	}
	if cfe.Format != FormatSRT || cfe.Line != 2 {
		t.Fatalf("unexpected error detail: %+v", cfe)
	}
}

func TestChunkVTT_HeaderSkipped(t *testing.T) {
	content := `WEBVTT

00:00:00.000 --> 00:00:01.000
First line.

NOTE internal comment

00:00:01.000 --> 00:00:02.000
Second line.
`
	c := New(1000, 200)
	chunks, err := c.Chunk(content, FormatVTT)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "First line.") || !strings.Contains(chunks[0].Text, "Second line.") {
		t.Fatalf("missing cue text: %q", chunks[0].Text)
	}
}

func TestChunkJSON_Utterances(t *testing.T) {
	content := `[
		{"speaker": "Alice", "text": "Hello everyone.", "start": 0, "end": 1.5},
		{"speaker": "Bob", "text": "Hi Alice.", "start": 1.5, "end": 2.25}
	]`
	c := New(1000, 200)
	chunks, err := c.Chunk(content, FormatJSON)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "Alice: Hello everyone.") {
		t.Fatalf("speaker prefix missing: %q", chunks[0].Text)
	}
	if chunks[0].EndTime != 2250*time.Millisecond {
		t.Fatalf("unexpected end time %s", chunks[0].EndTime)
	}
}

func TestChunkJSON_Invalid(t *testing.T) {
	c := New(1000, 200)
	_, err := c.Chunk("{not json", FormatJSON)
	var cfe *ContentFormatError
	if !errors.As(err, &cfe) {
		t.Fatalf("expected ContentFormatError, got %v", err)
	}
	if cfe.Format != FormatJSON {
		t.Fatalf("unexpected format: %s", cfe.Format)
	}
}

func TestChunkCues_OversizedCueKept(t *testing.T) {
	content := `1
00:00:00,000 --> 00:00:10,000
` + strings.Repeat("x", 5000) + `
`
	c := New(1000, 200)
	chunks, err := c.Chunk(content, FormatSRT)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("oversized cue must stay one chunk, got %d", len(chunks))
	}
	if len(chunks[0].Text) != 5000 {
		t.Fatalf("cue text truncated to %d", len(chunks[0].Text))
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"talk.txt":  FormatText,
		"talk.SRT":  FormatSRT,
		"talk.vtt":  FormatVTT,
		"talk.json": FormatJSON,
	}
	for name, want := range cases {
		got, ok := DetectFormat(name)
		if !ok || got != want {
			t.Fatalf("DetectFormat(%q) = %q, %v", name, got, ok)
		}
	}
	if _, ok := DetectFormat("talk.mp4"); ok {
		t.Fatal("mp4 should be unsupported")
	}
}
