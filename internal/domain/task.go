package domain

import (
	"errors"
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type User struct {
	ID          string
	ExternalID  string
	DisplayName string
	// Address is where notifications go (a Telegram chat id).
	Address   string
	CreatedAt time.Time
}

type Project struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// ProjectSummary is a project with the number of tasks linked to it.
type ProjectSummary struct {
	Project
	TaskCount int
}

type Task struct {
	ID          string
	OwnerID     string
	ProjectID   string // empty when the task has no project
	Title       string
	Description string
	Tags        []string
	DueAt       *time.Time

	Status TaskStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Reminder struct {
	ID          string
	TaskID      string
	ScheduledAt time.Time
	Sent        bool
	SentAt      *time.Time
	CreatedAt   time.Time
}

// DueReminder is a reminder joined with its task and the owner's delivery address.
type DueReminder struct {
	Reminder Reminder
	Task     Task
	Address  string
}

func ParseStatus(s string) (TaskStatus, bool) {
	switch st := TaskStatus(s); st {
	case StatusTodo, StatusInProgress, StatusDone, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// Closed reports whether no further transitions are allowed.
func (s TaskStatus) Closed() bool {
	return s == StatusDone || s == StatusCancelled
}

// CheckTransition validates moving a task from one status to another.
// Writing the current status again is always allowed.
func CheckTransition(from, to TaskStatus) error {
	if _, ok := ParseStatus(string(to)); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil
	}
	if from.Closed() {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
	}
	switch to {
	case StatusDone, StatusCancelled:
		return nil
	case StatusInProgress:
		if from == StatusTodo {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
