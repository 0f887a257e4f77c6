package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/amirbrooks/taskbot/internal/domain"
)

const (
	// taskIDProperty is the private extended property linking an event to
	// its task.
	taskIDProperty = "task_id"

	completedPrefix = "✓"

	DefaultDuration = 30 * time.Minute
)

var ErrAPINil = errors.New("calendar api is nil")

// EventAPI is the slice of the Calendar API the mirror uses.
type EventAPI interface {
	FindByTask(ctx context.Context, calendarID, taskID string) (*gcal.Event, error)
	Insert(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error)
	Patch(ctx context.Context, calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error)
	Delete(ctx context.Context, calendarID, eventID string) error
}

// Mirror keeps one calendar event per task with a due time.
type Mirror struct {
	api        EventAPI
	calendarID string
	loc        *time.Location
	lead       time.Duration
}

// New returns a mirror writing to calendarID. Events carry a popup reminder
// lead before the due time when lead is positive.
func New(api EventAPI, calendarID string, loc *time.Location, lead time.Duration) (*Mirror, error) {
	if api == nil {
		return nil, ErrAPINil
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	return &Mirror{api: api, calendarID: calendarID, loc: loc, lead: lead}, nil
}

// Publish creates or updates the task's event.
func (m *Mirror) Publish(ctx context.Context, t domain.Task) error {
	if t.DueAt == nil {
		return nil
	}
	ev := buildEvent(t, m.loc, m.lead)
	existing, err := m.api.FindByTask(ctx, m.calendarID, t.ID)
	if err != nil {
		return fmt.Errorf("find event for %s: %w", t.ID, err)
	}
	if existing != nil {
		if _, err := m.api.Patch(ctx, m.calendarID, existing.Id, ev); err != nil {
			return fmt.Errorf("patch event for %s: %w", t.ID, err)
		}
		return nil
	}
	if _, err := m.api.Insert(ctx, m.calendarID, ev); err != nil {
		return fmt.Errorf("insert event for %s: %w", t.ID, err)
	}
	return nil
}

// Complete marks the task's event as done. A task without an event gets one
// when it has a due time.
func (m *Mirror) Complete(ctx context.Context, t domain.Task) error {
	existing, err := m.api.FindByTask(ctx, m.calendarID, t.ID)
	if err != nil {
		return fmt.Errorf("find event for %s: %w", t.ID, err)
	}
	if existing == nil {
		if t.DueAt == nil {
			return nil
		}
		t.Status = domain.StatusDone
		return m.Publish(ctx, t)
	}
	patch := &gcal.Event{Summary: summary(t.Title, domain.StatusDone)}
	if _, err := m.api.Patch(ctx, m.calendarID, existing.Id, patch); err != nil {
		return fmt.Errorf("complete event for %s: %w", t.ID, err)
	}
	return nil
}

// Remove deletes the task's event if there is one.
func (m *Mirror) Remove(ctx context.Context, taskID string) error {
	existing, err := m.api.FindByTask(ctx, m.calendarID, taskID)
	if err != nil {
		return fmt.Errorf("find event for %s: %w", taskID, err)
	}
	if existing == nil {
		return nil
	}
	if err := m.api.Delete(ctx, m.calendarID, existing.Id); err != nil {
		return fmt.Errorf("delete event for %s: %w", taskID, err)
	}
	return nil
}

func buildEvent(t domain.Task, loc *time.Location, lead time.Duration) *gcal.Event {
	start := t.DueAt.In(loc)
	end := start.Add(DefaultDuration)

	ev := &gcal.Event{
		Summary:     summary(t.Title, t.Status),
		Description: t.Description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{taskIDProperty: t.ID},
		},
	}
	if len(t.Tags) > 0 {
		tags := make([]string, len(t.Tags))
		for i, tag := range t.Tags {
			tags[i] = "#" + tag
		}
		if ev.Description != "" {
			ev.Description += "\n\n"
		}
		ev.Description += strings.Join(tags, " ")
	}
	if lead > 0 {
		ev.Reminders = &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       []*gcal.EventReminder{{Method: "popup", Minutes: int64(lead / time.Minute)}},
			ForceSendFields: []string{"UseDefault"},
		}
	}
	return ev
}

func summary(title string, status domain.TaskStatus) string {
	title = strings.TrimSpace(title)
	if status == domain.StatusDone {
		return completedPrefix + " " + title
	}
	return title
}
