package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/intake"
	"github.com/amirbrooks/taskbot/internal/reminder"
	"github.com/amirbrooks/taskbot/internal/store"
)

type TaskStore interface {
	intake.ProjectDirectory
	reminder.ReminderStore

	GetOrCreateUser(ctx context.Context, externalID, displayName, address string) (domain.User, error)
	ListProjects(ctx context.Context, ownerID string) ([]domain.ProjectSummary, error)

	InsertTask(ctx context.Context, t domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	GetTaskByPrefix(ctx context.Context, ownerID, prefix string) (domain.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch store.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// CalendarMirror reflects tasks with a due time into an external calendar.
type CalendarMirror interface {
	Publish(ctx context.Context, t domain.Task) error
	Complete(ctx context.Context, t domain.Task) error
	Remove(ctx context.Context, taskID string) error
}

type Options struct {
	// Location is the zone "today" is computed in. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
	Calendar CalendarMirror
}

// Created is the outcome of turning a message into a stored task.
type Created struct {
	Task     domain.Task
	Project  *domain.Project
	Reminder *domain.Reminder
}

type BoardColumn struct {
	Status domain.TaskStatus
	Tasks  []domain.Task
}

var boardOrder = []domain.TaskStatus{
	domain.StatusTodo,
	domain.StatusInProgress,
	domain.StatusDone,
	domain.StatusCancelled,
}

type TaskService struct {
	store     TaskStore
	pipeline  *intake.Pipeline
	scheduler *reminder.Scheduler
	calendar  CalendarMirror
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func New(st TaskStore, pipeline *intake.Pipeline, scheduler *reminder.Scheduler, opts Options) (*TaskService, error) {
	if st == nil {
		return nil, ErrStoreNil
	}
	if pipeline == nil {
		return nil, ErrPipelineNil
	}
	if scheduler == nil {
		return nil, ErrSchedulerNil
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &TaskService{
		store:     st,
		pipeline:  pipeline,
		scheduler: scheduler,
		calendar:  opts.Calendar,
		loc:       opts.Location,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "tasks"),
	}, nil
}

func (s *TaskService) RegisterUser(ctx context.Context, externalID, displayName, address string) (domain.User, error) {
	return s.store.GetOrCreateUser(ctx, externalID, displayName, address)
}

// Preview interprets text without touching the store.
func (s *TaskService) Preview(text string) intake.Parsed {
	return s.pipeline.Resolver().Parse(text, s.now().In(s.loc))
}

// Submit turns a free-form message into a stored task with its reminder.
func (s *TaskService) Submit(ctx context.Context, ownerID, text string) (Created, error) {
	c, err := s.pipeline.Build(ctx, ownerID, text, s.now().In(s.loc))
	if err != nil {
		if errors.Is(err, intake.ErrEmptyMessage) || errors.Is(err, intake.ErrNoOwner) {
			return Created{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return Created{}, err
	}

	task, err := s.store.InsertTask(ctx, c.Task)
	if err != nil {
		return Created{}, fmt.Errorf("save task: %w", err)
	}
	out := Created{Task: task, Project: c.Project}

	if task.DueAt != nil {
		rem, err := s.scheduler.Schedule(ctx, task)
		if err != nil {
			if derr := s.store.DeleteTask(ctx, task.ID); derr != nil {
				s.logger.Error("roll back task after schedule failure", "task_id", task.ID, "err", derr)
				return Created{}, errors.Join(err, derr)
			}
			return Created{}, err
		}
		out.Reminder = &rem
	}

	s.mirror(ctx, "publish", task, func(ctx context.Context) error { return s.calendar.Publish(ctx, task) })
	s.logger.Info("task created", "task_id", task.ID, "owner_id", ownerID, "project_id", task.ProjectID, "due", task.DueAt)
	return out, nil
}

// Recent returns up to limit open tasks, newest first.
func (s *TaskService) Recent(ctx context.Context, ownerID string, limit int) ([]domain.Task, error) {
	return s.store.ListTasks(ctx, store.TaskFilter{OwnerID: ownerID, Open: true, Limit: limit})
}

// Today returns open tasks due on the current calendar day.
func (s *TaskService) Today(ctx context.Context, ownerID string) ([]domain.Task, error) {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)
	return s.store.ListTasks(ctx, store.TaskFilter{OwnerID: ownerID, Open: true, DueFrom: &start, DueBefore: &end})
}

func (s *TaskService) Tasks(ctx context.Context, f store.TaskFilter) ([]domain.Task, error) {
	return s.store.ListTasks(ctx, f)
}

// Board groups the owner's tasks by status in workflow order.
func (s *TaskService) Board(ctx context.Context, ownerID, projectID string) ([]BoardColumn, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{OwnerID: ownerID, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	byStatus := map[domain.TaskStatus][]domain.Task{}
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	out := make([]BoardColumn, 0, len(boardOrder))
	for _, st := range boardOrder {
		col := BoardColumn{Status: st, Tasks: byStatus[st]}
		if col.Tasks == nil {
			col.Tasks = []domain.Task{}
		}
		out = append(out, col)
	}
	return out, nil
}

func (s *TaskService) Projects(ctx context.Context, ownerID string) ([]domain.ProjectSummary, error) {
	return s.store.ListProjects(ctx, ownerID)
}

func (s *TaskService) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Resolve finds one of the owner's tasks by id or unambiguous id prefix.
func (s *TaskService) Resolve(ctx context.Context, ownerID, selector string) (domain.Task, error) {
	return s.store.GetTaskByPrefix(ctx, ownerID, selector)
}

// UpdateTaskStatus moves a task to status. Completed tasks are marked in the
// calendar mirror.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus) (domain.Task, error) {
	return s.Update(ctx, id, store.TaskPatch{Status: &status})
}

// Update applies a dashboard edit. Moving or clearing the due time replaces
// the task's pending reminders.
func (s *TaskService) Update(ctx context.Context, id string, patch store.TaskPatch) (domain.Task, error) {
	if patch.Status != nil {
		if _, ok := domain.ParseStatus(string(*patch.Status)); !ok {
			return domain.Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *patch.Status)
		}
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	before, err := s.store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := s.store.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}

	if patch.DueChanged() {
		if _, err := s.scheduler.Reschedule(ctx, task); err != nil {
			return task, err
		}
	}

	switch {
	case task.Status == domain.StatusDone && before.Status != domain.StatusDone:
		s.mirror(ctx, "complete", task, func(ctx context.Context) error { return s.calendar.Complete(ctx, task) })
	case patch.DueChanged() && task.DueAt == nil:
		s.mirror(ctx, "remove", task, func(ctx context.Context) error { return s.calendar.Remove(ctx, task.ID) })
	case patch.DueChanged() || patch.Title != nil || patch.Description != nil:
		s.mirror(ctx, "publish", task, func(ctx context.Context) error { return s.calendar.Publish(ctx, task) })
	}
	return task, nil
}

// Delete removes a task and its reminders.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.mirror(ctx, "remove", task, func(ctx context.Context) error { return s.calendar.Remove(ctx, id) })
	return nil
}

// mirror runs a calendar call when a mirror is configured. Failures are
// logged; the task store stays authoritative.
func (s *TaskService) mirror(ctx context.Context, op string, task domain.Task, fn func(context.Context) error) {
	if s.calendar == nil {
		return
	}
	if op != "remove" && task.DueAt == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.logger.Warn("calendar mirror failed", "op", op, "task_id", task.ID, "err", err)
	}
}
