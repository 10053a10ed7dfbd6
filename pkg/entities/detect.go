// Package entities implements Entity Detection (C6): scanning streamed
// assistant text for references to known domain entities (patients),
// emitting non-overlapping spans.
package entities

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entity is one candidate the detector scans for.
type Entity struct {
	ID   string
	Name string
}

// Span is a detected, half-open reference `[Start, End)` into the
// accumulated assistant text; indices are UTF-8 character (rune) offsets,
// not byte offsets (§3 EntityReference).
type Span struct {
	EntityID   string
	EntityName string
	Start      int
	End        int
}

// Detect scans text for every candidate's name and id-phrase occurrences
// and returns the greedy non-overlapping span set (§4.6 steps 1-4).
//
// Word-boundary locale note (§9 "Entity detection locale" open question):
// the source's boundary rule is ASCII word-character-vs-not. This
// implementation uses unicode.IsLetter/IsDigit instead, a deliberate
// widening so names containing non-ASCII letters are still
// whole-word-matched correctly; this is a behavior change from the
// source's ASCII-centric baseline, not a bug.
func Detect(text string, candidates []Entity) []Span {
	type candidateSpan struct {
		entityID, entityName string
		start, end            int
	}

	var raw []candidateSpan
	for _, c := range candidates {
		for _, s := range findNameOccurrences(text, c.Name) {
			raw = append(raw, candidateSpan{c.ID, c.Name, s[0], s[1]})
		}
		for _, s := range findIDOccurrences(text, c.ID) {
			raw = append(raw, candidateSpan{c.ID, c.Name, s[0], s[1]})
		}
	}

	// (start asc, length desc) — ties on start prefer the longer span.
	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].start != raw[j].start {
			return raw[i].start < raw[j].start
		}
		return (raw[i].end - raw[i].start) > (raw[j].end - raw[j].start)
	})

	var kept []candidateSpan
	for _, cand := range raw {
		overlaps := false
		for _, k := range kept {
			if cand.start < k.end && k.start < cand.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}

	out := make([]Span, len(kept))
	for i, k := range kept {
		out[i] = Span{EntityID: k.entityID, EntityName: k.entityName, Start: k.start, End: k.end}
	}
	return out
}

func isBoundaryRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// findNameOccurrences returns rune-index `[start,end)` spans of name as a
// case-insensitive whole word in text.
func findNameOccurrences(text, name string) [][2]int {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	runes := []rune(text)
	lowerText := strings.ToLower(text)
	lowerName := strings.ToLower(name)
	nameRuneLen := utf8.RuneCountInString(name)

	var spans [][2]int
	searchFrom := 0
	for {
		idx := strings.Index(lowerText[searchFrom:], lowerName)
		if idx < 0 {
			break
		}
		matchByteStart := searchFrom + idx
		matchByteEnd := matchByteStart + len(lowerName)

		startRune := utf8.RuneCountInString(text[:matchByteStart])
		endRune := startRune + nameRuneLen

		beforeOK := startRune == 0 || isBoundaryRune(runes[startRune-1])
		afterOK := endRune >= len(runes) || isBoundaryRune(runes[endRune])
		if beforeOK && afterOK {
			spans = append(spans, [2]int{startRune, endRune})
		}

		searchFrom = matchByteEnd
		if searchFrom >= len(lowerText) {
			break
		}
	}
	return spans
}

// findIDOccurrences matches the three id-phrase patterns §4.6 step 1
// specifies, case-insensitively, against a specific entity id.
func findIDOccurrences(text, id string) [][2]int {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	quoted := regexp.QuoteMeta(id)

	patterns := []string{
		`(?i)(^|\b)Patient ID[:\s]+` + quoted + `\b`,
		`(?i)\bPatient\s+#?` + quoted + `\b`,
		`(?i)\bID[:\s]+` + quoted + `\b`,
	}

	var spans [][2]int
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			startRune := utf8.RuneCountInString(text[:loc[0]])
			endRune := utf8.RuneCountInString(text[:loc[1]])
			spans = append(spans, [2]int{startRune, endRune})
		}
	}
	return spans
}

func dedupKey(entityID string, start int) string {
	return fmt.Sprintf("%s|%d", entityID, start)
}
