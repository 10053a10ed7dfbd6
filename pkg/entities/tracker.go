package entities

import "unicode/utf8"

// passEveryNChunks and largeChunkThreshold implement the periodic
// detector-pass heuristic of §4.6 step 5: run roughly every 50 content
// chunks, or immediately on any single chunk over 100 characters.
const (
	passEveryNChunks    = 50
	largeChunkThreshold = 100
)

// Tracker drives one turn's detector passes: it decides when a pass is
// due and deduplicates emitted spans across passes by (entity_id, start).
type Tracker struct {
	candidates          []Entity
	chunksSinceLastPass int
	emitted             map[string]bool
}

// NewTracker builds a tracker over the turn's known entity candidates
// (typically every patient visible to the requesting user, plus any
// context entity from the request).
func NewTracker(candidates []Entity) *Tracker {
	return &Tracker{candidates: candidates, emitted: make(map[string]bool)}
}

// Observe records one streamed content chunk and reports whether a
// detector pass is due: either this single chunk is over
// largeChunkThreshold runes, or passEveryNChunks chunks have been observed
// since the last Pass.
func (t *Tracker) Observe(chunk string) bool {
	t.chunksSinceLastPass++
	if utf8.RuneCountInString(chunk) > largeChunkThreshold {
		return true
	}
	return t.chunksSinceLastPass >= passEveryNChunks
}

// Pass runs the detector against the full accumulated text so far and
// returns only the spans new with respect to everything already emitted
// for this tracker (§4.6 step 5's dedup rule), then resets the
// chunk counter.
func (t *Tracker) Pass(accumulatedText string) []Span {
	all := Detect(accumulatedText, t.candidates)

	fresh := make([]Span, 0, len(all))
	for _, s := range all {
		key := dedupKey(s.EntityID, s.Start)
		if t.emitted[key] {
			continue
		}
		t.emitted[key] = true
		fresh = append(fresh, s)
	}

	t.chunksSinceLastPass = 0
	return fresh
}
