package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
)

const DefaultLead = 15 * time.Minute

var (
	ErrNoDueTime = errors.New("task has no due time")
	ErrNotSaved  = errors.New("task is not persisted")
	ErrStoreNil  = errors.New("reminder store is nil")
)

type ReminderStore interface {
	InsertReminder(ctx context.Context, taskID string, scheduledAt time.Time) (domain.Reminder, error)
	DeletePendingReminders(ctx context.Context, taskID string) (int, error)
}

// Scheduler creates the reminder of a task a fixed lead time before it is due.
type Scheduler struct {
	store ReminderStore
	lead  time.Duration
}

func NewScheduler(store ReminderStore, lead time.Duration) (*Scheduler, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Scheduler{store: store, lead: lead}, nil
}

func (s *Scheduler) Lead() time.Duration {
	return s.lead
}

// Schedule persists one unsent reminder at task.DueAt minus the lead time.
func (s *Scheduler) Schedule(ctx context.Context, task domain.Task) (domain.Reminder, error) {
	if task.ID == "" {
		return domain.Reminder{}, ErrNotSaved
	}
	if task.DueAt == nil {
		return domain.Reminder{}, ErrNoDueTime
	}
	rem, err := s.store.InsertReminder(ctx, task.ID, task.DueAt.Add(-s.lead))
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("schedule reminder for %s: %w", task.ID, err)
	}
	return rem, nil
}

// Reschedule drops the task's pending reminders and schedules a new one when
// the task still has a due time. Used when a due time is edited.
func (s *Scheduler) Reschedule(ctx context.Context, task domain.Task) (*domain.Reminder, error) {
	if task.ID == "" {
		return nil, ErrNotSaved
	}
	if _, err := s.store.DeletePendingReminders(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("drop pending reminders for %s: %w", task.ID, err)
	}
	if task.DueAt == nil {
		return nil, nil
	}
	rem, err := s.Schedule(ctx, task)
	if err != nil {
		return nil, err
	}
	return &rem, nil
}
