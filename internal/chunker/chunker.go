package chunker

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/transcript-buddy/transcriptbuddy/internal/settings"
)

// Format identifies the declared content format of a transcript.
type Format string

// Supported transcript formats.
const (
	// FormatText is plain unstructured text.
	FormatText Format = "text"
	// FormatSRT is the SubRip subtitle format.
	FormatSRT Format = "srt"
	// FormatVTT is the WebVTT subtitle format.
	FormatVTT Format = "vtt"
	// FormatJSON is a JSON array of utterance objects.
	FormatJSON Format = "json"
)

// DetectFormat maps a filename extension to a transcript format.
func DetectFormat(filename string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text":
		return FormatText, true
	case ".srt":
		return FormatSRT, true
	case ".vtt":
		return FormatVTT, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// Chunk is a contiguous span of a transcript's cleaned text with a stable
// 0-based sequence index. For subtitle formats the covered cue time range is
// carried alongside the character offsets.
type Chunk struct {
	Index     int           // 0-based position within the transcript.
	Text      string        // Chunk text.
	Start     int           // Start rune offset into the cleaned text.
	End       int           // End rune offset (exclusive) into the cleaned text.
	StartTime time.Duration // First covered cue start (subtitle formats).
	EndTime   time.Duration // Last covered cue end (subtitle formats).
}

// ContentFormatError reports malformed structured transcript content. The
// transcript stays pending: nothing is partially indexed on this error.
type ContentFormatError struct {
	Format Format // Declared format of the offending content.
	Line   int    // 1-based line of the problem, 0 when unknown.
	Reason string // What was wrong.
}

// Error implements the error interface.
func (e *ContentFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("content format error (%s, line %d): %s", e.Format, e.Line, e.Reason)
	}
	return fmt.Sprintf("content format error (%s): %s", e.Format, e.Reason)
}

// Chunker splits transcript content into bounded, overlapping chunks,
// preferring sentence and utterance boundaries over raw truncation.
type Chunker struct {
	size    int
	overlap int
}

// New constructs a Chunker with the given target size and overlap in
// characters. Non-positive values fall back to the defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = settings.DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = settings.DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits content of the declared format. Empty or whitespace-only
// content yields zero chunks and no error.
func (c *Chunker) Chunk(content string, format Format) ([]Chunk, error) {
	switch format {
	case FormatText, "":
		return c.chunkPlain(content), nil
	case FormatSRT:
		cues, err := parseSRT(content)
		if err != nil {
			return nil, err
		}
		return c.chunkCues(cues), nil
	case FormatVTT:
		cues, err := parseVTT(content)
		if err != nil {
			return nil, err
		}
		return c.chunkCues(cues), nil
	case FormatJSON:
		cues, err := parseJSONUtterances(content)
		if err != nil {
			return nil, err
		}
		return c.chunkCues(cues), nil
	default:
		return nil, &ContentFormatError{Format: format, Reason: "unsupported format"}
	}
}

// chunkPlain walks fixed-size windows over the cleaned text, breaking at the
// last sentence or line boundary past the window midpoint when one exists.
// Windows are measured in runes so a boundary never splits a multi-byte
// character.
func (c *Chunker) chunkPlain(content string) []Chunk {
	text := []rune(strings.TrimSpace(content))
	if len(text) == 0 {
		return nil
	}
	if len(text) <= c.size {
		return []Chunk{{Index: 0, Text: string(text), Start: 0, End: len(text)}}
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else if bp := breakPoint(text[start:end]); bp > c.size/2 {
			end = start + bp
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(text[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(text) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint returns the rune offset just past the last sentence or line
// boundary in window, or -1 when none exists.
func breakPoint(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '\n' {
			return i + 1
		}
		if window[i] == '.' && i+1 < len(window) && window[i+1] == ' ' {
			return i + 2
		}
	}
	return -1
}

// cue is one timed utterance from a structured transcript.
type cue struct {
	start time.Duration
	end   time.Duration
	text  string
}

// chunkCues groups consecutive cues up to the size budget. A single cue
// larger than the budget becomes one oversized chunk rather than being
// dropped. Trailing cues within the overlap budget are re-included at the
// head of the next group to preserve cross-boundary context.
func (c *Chunker) chunkCues(cues []cue) []Chunk {
	if len(cues) == 0 {
		return nil
	}

	// Offsets index into the cleaned text formed by joining cue texts with
	// single newlines.
	offsets := make([]int, len(cues))
	pos := 0
	for i, cu := range cues {
		offsets[i] = pos
		pos += utf8.RuneCountInString(cu.text)
		if i < len(cues)-1 {
			pos++
		}
	}

	var chunks []Chunk
	i := 0
	for i < len(cues) {
		groupStart := i
		groupLen := 0
		for i < len(cues) {
			cueLen := utf8.RuneCountInString(cues[i].text)
			if groupLen > 0 && groupLen+1+cueLen > c.size {
				break
			}
			if groupLen > 0 {
				groupLen++
			}
			groupLen += cueLen
			i++
		}

		last := i - 1
		parts := make([]string, 0, last-groupStart+1)
		for j := groupStart; j <= last; j++ {
			parts = append(parts, cues[j].text)
		}
		text := strings.Join(parts, "\n")
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      text,
			Start:     offsets[groupStart],
			End:       offsets[last] + utf8.RuneCountInString(cues[last].text),
			StartTime: cues[groupStart].start,
			EndTime:   cues[last].end,
		})
		if i >= len(cues) {
			break
		}

		// Rewind over trailing cues that fit the overlap budget.
		back := i
		overlapLen := 0
		for back > groupStart+1 {
			candidate := utf8.RuneCountInString(cues[back-1].text)
			if overlapLen+candidate > c.overlap {
				break
			}
			overlapLen += candidate
			back--
		}
		i = back
	}
	return chunks
}
