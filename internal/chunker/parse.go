package chunker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	srtTimingRe = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}[,.]\d{3})`)
	cueIndexRe  = regexp.MustCompile(`^\d+$`)
)

// parseTimestamp parses "HH:MM:SS,mmm" or "HH:MM:SS.mmm".
func parseTimestamp(raw string) (time.Duration, error) {
	normalized := strings.ReplaceAll(raw, ",", ".")
	parts := strings.Split(normalized, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", raw)
	}
	hours, errH := strconv.Atoi(parts[0])
	minutes, errM := strconv.Atoi(parts[1])
	seconds, errS := strconv.ParseFloat(parts[2], 64)
	if errH != nil || errM != nil || errS != nil {
		return 0, fmt.Errorf("bad timestamp %q", raw)
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second)), nil
}

// parseSRT parses SubRip content into timed cues. Cue index lines are
// optional; a line containing "-->" that fails to parse is a format error.
func parseSRT(content string) ([]cue, error) {
	return parseSubtitle(content, FormatSRT)
}

// parseVTT parses WebVTT content into timed cues. The WEBVTT header and NOTE
// blocks are skipped.
func parseVTT(content string) ([]cue, error) {
	return parseSubtitle(content, FormatVTT)
}

func parseSubtitle(content string, format Format) ([]cue, error) {
	lines := strings.Split(content, "\n")
	var cues []cue

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		lineNo := i + 1
		i++

		if line == "" || line == "WEBVTT" || strings.HasPrefix(line, "NOTE") {
			continue
		}
		// A bare cue counter line precedes the timing line in SRT.
		if cueIndexRe.MatchString(line) {
			continue
		}
		if !strings.Contains(line, "-->") {
			return nil, &ContentFormatError{
				Format: format,
				Line:   lineNo,
				Reason: fmt.Sprintf("expected cue timing, got %q", truncateForError(line)),
			}
		}

		m := srtTimingRe.FindStringSubmatch(line)
		if m == nil {
			return nil, &ContentFormatError{
				Format: format,
				Line:   lineNo,
				Reason: fmt.Sprintf("unparseable cue timing %q", truncateForError(line)),
			}
		}
		start, errStart := parseTimestamp(m[1])
		if errStart != nil {
			return nil, &ContentFormatError{Format: format, Line: lineNo, Reason: errStart.Error()}
		}
		end, errEnd := parseTimestamp(m[2])
		if errEnd != nil {
			return nil, &ContentFormatError{Format: format, Line: lineNo, Reason: errEnd.Error()}
		}
		if end < start {
			return nil, &ContentFormatError{Format: format, Line: lineNo, Reason: "cue ends before it starts"}
		}

		var textLines []string
		for i < len(lines) {
			text := strings.TrimSpace(lines[i])
			if text == "" {
				break
			}
			textLines = append(textLines, text)
			i++
		}
		text := strings.TrimSpace(strings.Join(textLines, " "))
		if text == "" {
			continue
		}
		cues = append(cues, cue{start: start, end: end, text: text})
	}
	return cues, nil
}

// jsonUtterance is one element of a structured JSON transcript.
type jsonUtterance struct {
	Speaker string   `json:"speaker"`
	Text    string   `json:"text"`
	Start   *float64 `json:"start"` // Seconds from transcript start.
	End     *float64 `json:"end"`   // Seconds from transcript start.
}

// parseJSONUtterances parses a JSON array of utterance objects.
func parseJSONUtterances(content string) ([]cue, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil
	}

	var utterances []jsonUtterance
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &utterances); errUnmarshal != nil {
		return nil, &ContentFormatError{Format: FormatJSON, Reason: errUnmarshal.Error()}
	}

	cues := make([]cue, 0, len(utterances))
	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		if u.Speaker != "" {
			text = u.Speaker + ": " + text
		}
		item := cue{text: text}
		if u.Start != nil {
			item.start = time.Duration(*u.Start * float64(time.Second))
		}
		if u.End != nil {
			item.end = time.Duration(*u.End * float64(time.Second))
		}
		if item.end < item.start {
			return nil, &ContentFormatError{Format: FormatJSON, Reason: "utterance ends before it starts"}
		}
		cues = append(cues, item)
	}
	return cues, nil
}

func truncateForError(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
