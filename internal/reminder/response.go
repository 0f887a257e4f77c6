package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
)

const DefaultSnooze = 60 * time.Minute

type TaskStatusStore interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus) (domain.Task, error)
}

type Outcome string

const (
	OutcomeDone       Outcome = "done"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSnoozed    Outcome = "snoozed"
	// OutcomeRejected means the task's status does not allow the action.
	OutcomeRejected Outcome = "rejected"
	OutcomeIgnored  Outcome = "ignored"
)

type Result struct {
	Outcome  Outcome
	Task     domain.Task
	Reminder *domain.Reminder
}

type ResponderConfig struct {
	Snooze time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

// Responder applies a user's reaction to a delivered reminder.
type Responder struct {
	tasks     TaskStatusStore
	reminders ReminderStore
	notifier  Notifier
	snooze    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewResponder(tasks TaskStatusStore, reminders ReminderStore, notifier Notifier, cfg ResponderConfig) (*Responder, error) {
	if tasks == nil || reminders == nil {
		return nil, ErrStoreNil
	}
	if notifier == nil {
		return nil, ErrNotifierNil
	}
	if cfg.Snooze <= 0 {
		cfg.Snooze = DefaultSnooze
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Responder{
		tasks:     tasks,
		reminders: reminders,
		notifier:  notifier,
		snooze:    cfg.Snooze,
		logger:    cfg.Logger.With("component", "responder"),
		now:       cfg.Now,
	}, nil
}

// Handle processes one button press. Unknown kinds are ignored without an
// error. Once an action is processed (or rejected) the buttons of the
// originating message are removed.
func (r *Responder) Handle(ctx context.Context, ev ActionEvent) (Result, error) {
	var (
		res Result
		err error
	)
	switch ev.Kind {
	case ActionDone:
		res, err = r.transition(ctx, ev.TaskID, domain.StatusDone, OutcomeDone)
	case ActionInProgress:
		res, err = r.transition(ctx, ev.TaskID, domain.StatusInProgress, OutcomeInProgress)
	case ActionSnooze:
		res, err = r.snoozeTask(ctx, ev.TaskID)
	default:
		return Result{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if err := r.notifier.DisableActions(ctx, ev.Message); err != nil {
		r.logger.Warn("could not remove reminder buttons", "task_id", ev.TaskID, "err", err)
	}
	return res, nil
}

func (r *Responder) transition(ctx context.Context, taskID string, to domain.TaskStatus, outcome Outcome) (Result, error) {
	task, err := r.tasks.GetTask(ctx, taskID)
	if err != nil {
		return Result{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if err := domain.CheckTransition(task.Status, to); err != nil {
		return Result{Outcome: OutcomeRejected, Task: task}, nil
	}
	updated, err := r.tasks.UpdateTaskStatus(ctx, taskID, to)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return Result{Outcome: OutcomeRejected, Task: task}, nil
		}
		return Result{}, fmt.Errorf("update task %s: %w", taskID, err)
	}
	return Result{Outcome: outcome, Task: updated}, nil
}

func (r *Responder) snoozeTask(ctx context.Context, taskID string) (Result, error) {
	task, err := r.tasks.GetTask(ctx, taskID)
	if err != nil {
		return Result{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	rem, err := r.reminders.InsertReminder(ctx, taskID, r.now().Add(r.snooze))
	if err != nil {
		return Result{}, fmt.Errorf("snooze task %s: %w", taskID, err)
	}
	return Result{Outcome: OutcomeSnoozed, Task: task, Reminder: &rem}, nil
}
