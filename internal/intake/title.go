package intake

import (
	"sort"
	"strings"
)

// NormalizeTitle strips tags and date phrases from text with the default
// resolver's vocabulary.
func NormalizeTitle(text string) string {
	return defaultResolver.Normalize(text)
}

// Normalize removes every tag, day word, "in N days" phrase and clock time
// from text and collapses whitespace. The result may be empty.
func (r *Resolver) Normalize(text string) string {
	// Removing one phrase can make a new one adjacent ("in #x 3 days"), so
	// strip until nothing else matches.
	s := collapseSpaces(text)
	for {
		next := collapseSpaces(stripSpans(s, recognizedSpans(s)))
		if next == s {
			return s
		}
		s = next
	}
}

func recognizedSpans(text string) [][2]int {
	spans := tagSpans(text)
	for _, tok := range findDayTokens(text) {
		spans = append(spans, [2]int{tok.start, tok.end})
	}
	for _, p := range findInDays(text) {
		spans = append(spans, [2]int{p.start, p.end})
	}
	for _, c := range findClocks(text) {
		spans = append(spans, [2]int{c.start, c.end})
	}
	return spans
}

// stripSpans replaces each (possibly overlapping) span with a single space.
func stripSpans(text string, spans [][2]int) string {
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		if sp[1] <= pos {
			continue
		}
		if sp[0] > pos {
			b.WriteString(text[pos:sp[0]])
		}
		b.WriteByte(' ')
		pos = sp[1]
	}
	b.WriteString(text[pos:])
	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
