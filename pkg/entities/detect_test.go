package entities

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_WholeWordNameMatch(t *testing.T) {
	spans := Detect("Jane Roe presented with chest pain. JaneRoe is unrelated.", []Entity{
		{ID: "23", Name: "Jane Roe"},
	})
	require.Len(t, spans, 1)
	assert.Equal(t, "23", spans[0].EntityID)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 8, spans[0].End)
}

func TestDetect_CaseInsensitive(t *testing.T) {
	spans := Detect("JANE ROE is doing well.", []Entity{{ID: "23", Name: "Jane Roe"}})
	require.Len(t, spans, 1)
}

func TestDetect_IDPhrasePatterns(t *testing.T) {
	text := "See Patient ID: 23 for history. Patient #23 was seen yesterday. ID 23 confirmed."
	spans := Detect(text, []Entity{{ID: "23", Name: "Someone Unrelated"}})
	assert.GreaterOrEqual(t, len(spans), 3)
}

func TestDetect_NonOverlapping(t *testing.T) {
	text := "Patient ID: 23 is Jane Roe, and Jane Roe is 40 years old."
	spans := Detect(text, []Entity{{ID: "23", Name: "Jane Roe"}})

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			overlap := a.Start < b.End && b.Start < a.End
			assert.False(t, overlap, "spans %v and %v overlap", a, b)
		}
	}
}

func TestDetect_PrefersLongerSpanOnTie(t *testing.T) {
	spans := Detect("Dr. Jane Roe Smith is the attending.", []Entity{
		{ID: "1", Name: "Jane Roe Smith"},
		{ID: "2", Name: "Jane Roe"},
	})
	require.Len(t, spans, 1)
	assert.Equal(t, "1", spans[0].EntityID)
}

func TestDetect_NoSubstringMatch(t *testing.T) {
	spans := Detect("Janet Roe was seen today.", []Entity{{ID: "23", Name: "Jane Roe"}})
	assert.Empty(t, spans)
}

func TestDetect_UnicodeNameBoundary(t *testing.T) {
	spans := Detect("patient José García arrived today.", []Entity{{ID: "9", Name: "José García"}})
	require.Len(t, spans, 1)
	assert.Equal(t, "José García", text(spans[0], "patient José García arrived today."))
}

func text(s Span, full string) string {
	r := []rune(full)
	return string(r[s.Start:s.End])
}

func TestTracker_DuePassOnLargeChunk(t *testing.T) {
	tracker := NewTracker(nil)
	due := tracker.Observe(strings.Repeat("a", 150))
	assert.True(t, due)
}

func TestTracker_DuePassEveryNChunks(t *testing.T) {
	tracker := NewTracker(nil)
	var due bool
	for i := 0; i < passEveryNChunks; i++ {
		due = tracker.Observe("x")
	}
	assert.True(t, due)
}

func TestTracker_PassDedupesAcrossCalls(t *testing.T) {
	tracker := NewTracker([]Entity{{ID: "23", Name: "Jane Roe"}})

	first := tracker.Pass("Jane Roe presented today.")
	require.Len(t, first, 1)

	second := tracker.Pass("Jane Roe presented today. Jane Roe returned for follow-up.")
	require.Len(t, second, 1)
	assert.Equal(t, 26, second[0].Start)
}
