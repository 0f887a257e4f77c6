package intake

import (
	"testing"
	"time"
)

var ref = time.Date(2024, time.March, 10, 10, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestResolveDue(t *testing.T) {
	tests := []struct {
		name string
		text string
		now  time.Time
		want time.Time
		ok   bool
	}{
		{"today", "Купить молоко сегодня #дом", ref, at(10, 18, 0), true},
		{"today after default time", "сегодня", at(10, 20, 0), at(10, 18, 0), true},
		{"tomorrow beats clock time", "Созвониться завтра в 15:00", ref, at(11, 18, 0), true},
		{"day after tomorrow", "отчёт послезавтра", ref, at(12, 18, 0), true},
		{"in three days", "через 3 дня", ref, at(13, 18, 0), true},
		{"in one day", "через 1 день", ref, at(11, 18, 0), true},
		{"in many days", "через 5 дней", ref, at(15, 18, 0), true},
		{"capitalized", "Завтра встреча", ref, at(11, 18, 0), true},
		{"english today", "pay rent today", ref, at(10, 18, 0), true},
		{"english tomorrow", "call Bob Tomorrow", ref, at(11, 18, 0), true},
		{"english day after tomorrow", "ship it day after tomorrow", ref, at(12, 18, 0), true},
		{"english in days", "renew in 2 days", ref, at(12, 18, 0), true},
		{"clock later today", "встреча в 15:00", ref, at(10, 15, 0), true},
		{"clock single digit hour", "зарядка 9:05", at(10, 8, 0), at(10, 9, 5), true},
		{"clock passed rolls one day", "15:00", at(10, 16, 0), at(11, 15, 0), true},
		{"clock equal to now stays", "15:00", at(10, 15, 0), at(10, 15, 0), true},
		{"today precedes tomorrow", "завтра или сегодня", ref, at(10, 18, 0), true},
		{"word inside another word", "завтрак с командой", ref, time.Time{}, false},
		{"zero days", "через 0 дней", ref, time.Time{}, false},
		{"invalid clock", "25:00", ref, time.Time{}, false},
		{"first valid clock", "25:00 или 15:30", ref, at(10, 15, 30), true},
		{"glued digits", "123:45", ref, time.Time{}, false},
		{"nothing", "Купить молоко", ref, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveDue(tt.text, tt.now)
			if ok != tt.ok {
				t.Fatalf("ResolveDue(%q) ok=%v, want %v", tt.text, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("ResolveDue(%q)=%v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolveDue_MonthRollover(t *testing.T) {
	now := time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)
	got, ok := ResolveDue("завтра", now)
	if !ok {
		t.Fatal("ResolveDue ok=false, want true")
	}
	want := time.Date(2024, time.February, 1, 18, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ResolveDue=%v, want %v", got, want)
	}
}

func TestResolver_Location(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	r := NewResolver(Options{Location: msk, DefaultHour: 18})

	// 22:00 UTC is already the next day in MSK.
	now := time.Date(2024, time.March, 10, 22, 0, 0, 0, time.UTC)
	got, ok := r.Resolve("сегодня", now)
	if !ok {
		t.Fatal("Resolve ok=false, want true")
	}
	want := time.Date(2024, time.March, 11, 18, 0, 0, 0, msk)
	if !got.Equal(want) {
		t.Fatalf("Resolve=%v, want %v", got, want)
	}
}

func TestResolver_DefaultTime(t *testing.T) {
	r := NewResolver(Options{DefaultHour: 9, DefaultMinute: 30})
	got, ok := r.Resolve("завтра", ref)
	if !ok || !got.Equal(at(11, 9, 30)) {
		t.Fatalf("Resolve=%v ok=%v, want %v", got, ok, at(11, 9, 30))
	}
}
