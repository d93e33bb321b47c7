package vectorstore

import (
	"testing"
)

func TestSortMatchesTieBreak(t *testing.T) {
	matches := []Match{
		{TranscriptID: 3, SequenceIndex: 0, Score: 0.9},
		{TranscriptID: 2, SequenceIndex: 5, Score: 0.9},
		{TranscriptID: 2, SequenceIndex: 1, Score: 0.9},
		{TranscriptID: 1, SequenceIndex: 0, Score: 0.5},
		{TranscriptID: 9, SequenceIndex: 9, Score: 0.95},
	}

	SortMatches(matches)

	want := []struct {
		transcriptID  uint64
		sequenceIndex int
	}{
		{9, 9},
		{2, 1},
		{2, 5},
		{3, 0},
		{1, 0},
	}
	for i, w := range want {
		got := matches[i]
		if got.TranscriptID != w.transcriptID || got.SequenceIndex != w.sequenceIndex {
			t.Fatalf("match %d = transcript %d seq %d, want transcript %d seq %d",
				i, got.TranscriptID, got.SequenceIndex, w.transcriptID, w.sequenceIndex)
		}
	}
}
