package intake

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultHour   = 18
	DefaultMinute = 0

	// maxOffsetDays bounds "in N days" so absurd offsets are not resolved.
	maxOffsetDays = 36500
)

type dayKind int

const (
	dayToday dayKind = iota
	dayTomorrow
	dayAfterTomorrow
)

var (
	// Longer alternatives come first so "послезавтра" is never read as "завтра".
	dayTokenRe = regexp.MustCompile(`(?i)day\s+after\s+tomorrow|послезавтра|tomorrow|завтра|today|сегодня`)
	inDaysRe   = regexp.MustCompile(`(?i)(?:через|in)\s+(\d+)\s+(?:дней|дня|день|days|day)`)
	clockRe    = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
)

// Options configures a Resolver.
type Options struct {
	// Location is the single zone used for calendar arithmetic.
	// Nil means the location of the reference time.
	Location *time.Location
	// DefaultHour and DefaultMinute are applied to day-level phrases.
	DefaultHour   int
	DefaultMinute int
}

type rule func(text string, now time.Time) (time.Time, bool)

// Resolver maps date phrases in free text to a concrete instant. Rules are
// tried in a fixed order and the first one that matches wins; they are never
// combined, so "завтра в 15:00" resolves to tomorrow at the default time.
type Resolver struct {
	loc    *time.Location
	hour   int
	minute int
	rules  []rule
}

func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		loc:    opts.Location,
		hour:   opts.DefaultHour,
		minute: opts.DefaultMinute,
	}
	r.rules = []rule{
		r.dayRule(dayToday, 0),
		r.dayRule(dayTomorrow, 1),
		r.dayRule(dayAfterTomorrow, 2),
		r.inDaysRule,
		r.clockRule,
	}
	return r
}

var defaultResolver = NewResolver(Options{DefaultHour: DefaultHour, DefaultMinute: DefaultMinute})

// ResolveDue resolves text with the default resolver.
func ResolveDue(text string, now time.Time) (time.Time, bool) {
	return defaultResolver.Resolve(text, now)
}

// Resolve returns the due instant described by text relative to now, or
// false when no rule matches.
func (r *Resolver) Resolve(text string, now time.Time) (time.Time, bool) {
	if r.loc != nil {
		now = now.In(r.loc)
	}
	for _, match := range r.rules {
		if t, ok := match(text, now); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (r *Resolver) dayRule(kind dayKind, offset int) rule {
	return func(text string, now time.Time) (time.Time, bool) {
		for _, tok := range findDayTokens(text) {
			if tok.kind == kind {
				return r.atDefaultTime(now, offset), true
			}
		}
		return time.Time{}, false
	}
}

func (r *Resolver) inDaysRule(text string, now time.Time) (time.Time, bool) {
	phrases := findInDays(text)
	if len(phrases) == 0 {
		return time.Time{}, false
	}
	return r.atDefaultTime(now, phrases[0].days), true
}

func (r *Resolver) clockRule(text string, now time.Time) (time.Time, bool) {
	for _, c := range findClocks(text) {
		if !c.valid {
			continue
		}
		t := time.Date(now.Year(), now.Month(), now.Day(), c.hour, c.minute, 0, 0, now.Location())
		if t.Before(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	}
	return time.Time{}, false
}

func (r *Resolver) atDefaultTime(now time.Time, offsetDays int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+offsetDays, r.hour, r.minute, 0, 0, now.Location())
}

type dayToken struct {
	kind       dayKind
	start, end int
}

func findDayTokens(text string) []dayToken {
	var out []dayToken
	for _, loc := range dayTokenRe.FindAllStringIndex(text, -1) {
		if !isWordBounded(text, loc[0], loc[1]) {
			continue
		}
		word := strings.ToLower(strings.Join(strings.Fields(text[loc[0]:loc[1]]), " "))
		kind := dayAfterTomorrow
		switch word {
		case "сегодня", "today":
			kind = dayToday
		case "завтра", "tomorrow":
			kind = dayTomorrow
		}
		out = append(out, dayToken{kind: kind, start: loc[0], end: loc[1]})
	}
	return out
}

type inDaysPhrase struct {
	days       int
	start, end int
}

func findInDays(text string) []inDaysPhrase {
	var out []inDaysPhrase
	for _, m := range inDaysRe.FindAllStringSubmatchIndex(text, -1) {
		if !isWordBounded(text, m[0], m[1]) {
			continue
		}
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || n < 1 || n > maxOffsetDays {
			continue
		}
		out = append(out, inDaysPhrase{days: n, start: m[0], end: m[1]})
	}
	return out
}

// clockTime is an H:MM or HH:MM substring. Out-of-range ones such as 25:00
// are still reported, with valid unset, so the title drops them too.
type clockTime struct {
	hour, minute int
	start, end   int
	valid        bool
}

func findClocks(text string) []clockTime {
	var out []clockTime
	for _, m := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		if digitAt(text, m[0], true) || digitAt(text, m[1], false) {
			continue
		}
		h, _ := strconv.Atoi(text[m[2]:m[3]])
		min, _ := strconv.Atoi(text[m[4]:m[5]])
		out = append(out, clockTime{hour: h, minute: min, start: m[0], end: m[1], valid: h <= 23 && min <= 59})
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// isWordBounded reports whether text[start:end] is not glued to a
// neighbouring word character.
func isWordBounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func digitAt(text string, pos int, before bool) bool {
	if before {
		return pos > 0 && text[pos-1] >= '0' && text[pos-1] <= '9'
	}
	return pos < len(text) && text[pos] >= '0' && text[pos] <= '9'
}
