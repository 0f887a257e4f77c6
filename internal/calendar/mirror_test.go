package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/amirbrooks/taskbot/internal/domain"
)

type fakeAPI struct {
	events  map[string]*gcal.Event // event id -> event
	nextID  int
	findErr error
	calls   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{events: map[string]*gcal.Event{}}
}

func (f *fakeAPI) FindByTask(_ context.Context, calendarID, taskID string) (*gcal.Event, error) {
	f.calls = append(f.calls, "find:"+calendarID)
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, ev := range f.events {
		if ev.ExtendedProperties != nil && ev.ExtendedProperties.Private[taskIDProperty] == taskID {
			return ev, nil
		}
	}
	return nil, nil
}

func (f *fakeAPI) Insert(_ context.Context, _ string, ev *gcal.Event) (*gcal.Event, error) {
	f.calls = append(f.calls, "insert")
	f.nextID++
	ev.Id = fmt.Sprintf("ev%d", f.nextID)
	f.events[ev.Id] = ev
	return ev, nil
}

func (f *fakeAPI) Patch(_ context.Context, _ string, eventID string, patch *gcal.Event) (*gcal.Event, error) {
	f.calls = append(f.calls, "patch")
	ev, ok := f.events[eventID]
	if !ok {
		return nil, errors.New("404")
	}
	if patch.Summary != "" {
		ev.Summary = patch.Summary
	}
	if patch.Start != nil {
		ev.Start, ev.End = patch.Start, patch.End
	}
	return ev, nil
}

func (f *fakeAPI) Delete(_ context.Context, _ string, eventID string) error {
	f.calls = append(f.calls, "delete")
	delete(f.events, eventID)
	return nil
}

func testTask(due time.Time) domain.Task {
	return domain.Task{ID: "tsk_1", Title: "Созвон с Иваном", Tags: []string{"работа"}, DueAt: &due, Status: domain.StatusTodo}
}

func TestBuildEvent(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	due := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	task := testTask(due)
	task.Description = "обсудить отчёт"

	ev := buildEvent(task, loc, 15*time.Minute)

	if ev.Summary != "Созвон с Иваном" {
		t.Errorf("Summary = %q", ev.Summary)
	}
	if ev.Start.DateTime != "2024-03-11T15:00:00+03:00" || ev.End.DateTime != "2024-03-11T15:30:00+03:00" {
		t.Errorf("Start/End = %s / %s", ev.Start.DateTime, ev.End.DateTime)
	}
	if ev.ExtendedProperties.Private[taskIDProperty] != "tsk_1" {
		t.Errorf("Private = %v", ev.ExtendedProperties.Private)
	}
	if ev.Description != "обсудить отчёт\n\n#работа" {
		t.Errorf("Description = %q", ev.Description)
	}
	if ev.Reminders == nil || len(ev.Reminders.Overrides) != 1 || ev.Reminders.Overrides[0].Minutes != 15 {
		t.Errorf("Reminders = %+v", ev.Reminders)
	}

	task.Status = domain.StatusDone
	if got := buildEvent(task, loc, 0); got.Summary != "✓ Созвон с Иваном" || got.Reminders != nil {
		t.Errorf("done event = %q reminders=%v", got.Summary, got.Reminders)
	}
}

func TestMirror_PublishUpserts(t *testing.T) {
	api := newFakeAPI()
	m, err := New(api, "", time.UTC, 0)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	ctx := context.Background()
	due := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)

	if err := m.Publish(ctx, testTask(due)); err != nil {
		t.Fatalf("Publish() err=%v", err)
	}
	moved := testTask(due.Add(24 * time.Hour))
	if err := m.Publish(ctx, moved); err != nil {
		t.Fatalf("Publish() err=%v", err)
	}

	if len(api.events) != 1 {
		t.Fatalf("events=%d, want 1", len(api.events))
	}
	if got := api.events["ev1"].Start.DateTime; got != "2024-03-12T12:00:00Z" {
		t.Fatalf("start=%s", got)
	}
	if api.calls[0] != "find:primary" {
		t.Fatalf("calendar id defaulted to %q", api.calls[0])
	}
}

func TestMirror_PublishWithoutDueIsNoop(t *testing.T) {
	api := newFakeAPI()
	m, _ := New(api, "cal", time.UTC, 0)
	if err := m.Publish(context.Background(), domain.Task{ID: "tsk_1"}); err != nil {
		t.Fatalf("Publish() err=%v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("calls=%v", api.calls)
	}
}

func TestMirror_Complete(t *testing.T) {
	api := newFakeAPI()
	m, _ := New(api, "cal", time.UTC, 0)
	ctx := context.Background()
	due := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)

	if err := m.Publish(ctx, testTask(due)); err != nil {
		t.Fatal(err)
	}
	if err := m.Complete(ctx, testTask(due)); err != nil {
		t.Fatalf("Complete() err=%v", err)
	}
	if got := api.events["ev1"].Summary; got != "✓ Созвон с Иваном" {
		t.Fatalf("summary=%q", got)
	}

	// a task never published gets a completed event
	other := testTask(due)
	other.ID = "tsk_2"
	if err := m.Complete(ctx, other); err != nil {
		t.Fatalf("Complete() err=%v", err)
	}
	if got := api.events["ev2"].Summary; !strings.HasPrefix(got, completedPrefix) {
		t.Fatalf("summary=%q", got)
	}
}

func TestMirror_Remove(t *testing.T) {
	api := newFakeAPI()
	m, _ := New(api, "cal", time.UTC, 0)
	ctx := context.Background()

	if err := m.Remove(ctx, "tsk_1"); err != nil {
		t.Fatalf("Remove(missing) err=%v", err)
	}
	if err := m.Publish(ctx, testTask(time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove(ctx, "tsk_1"); err != nil {
		t.Fatalf("Remove() err=%v", err)
	}
	if len(api.events) != 0 {
		t.Fatalf("events=%v", api.events)
	}
}

func TestMirror_FindError(t *testing.T) {
	api := newFakeAPI()
	api.findErr = errors.New("quota")
	m, _ := New(api, "cal", time.UTC, 0)

	if err := m.Publish(context.Background(), testTask(time.Now())); !errors.Is(err, api.findErr) {
		t.Fatalf("Publish() err=%v, want %v", err, api.findErr)
	}
	if _, err := New(nil, "cal", nil, 0); !errors.Is(err, ErrAPINil) {
		t.Fatalf("New(nil) err=%v", err)
	}
}

func TestOAuthConfigAndToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	secrets := `{"installed":{"client_id":"cid","client_secret":"secret","redirect_uris":["http://localhost"],` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`
	if err := os.WriteFile(creds, []byte(secrets), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := OAuthConfig(creds)
	if err != nil {
		t.Fatalf("OAuthConfig() err=%v", err)
	}
	if cfg.ClientID != "cid" || len(cfg.Scopes) != 1 || cfg.Scopes[0] != gcal.CalendarEventsScope {
		t.Fatalf("cfg=%+v", cfg)
	}
	if url := AuthURL(cfg); !strings.Contains(url, "access_type=offline") {
		t.Fatalf("AuthURL()=%s", url)
	}

	tokenFile := filepath.Join(dir, "nested", "token.json")
	if _, err := LoadToken(tokenFile); !errors.Is(err, ErrNoToken) {
		t.Fatalf("LoadToken(missing) err=%v, want %v", err, ErrNoToken)
	}
	if err := SaveToken(tokenFile, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("SaveToken() err=%v", err)
	}
	tok, err := LoadToken(tokenFile)
	if err != nil || tok.RefreshToken != "r" {
		t.Fatalf("LoadToken() = %+v, %v", tok, err)
	}
}
