package reminder

import (
	"context"
	"strings"
)

type ActionKind string

const (
	ActionDone       ActionKind = "done"
	ActionInProgress ActionKind = "in_progress"
	ActionSnooze     ActionKind = "snooze"

	// legacyProgress is what older reminder messages carry for in_progress.
	legacyProgress = "progress"
)

// Action is one response button attached to a delivered reminder.
type Action struct {
	Label  string
	Kind   ActionKind
	TaskID string
}

// MessageRef identifies a delivered notification so its buttons can be
// removed later.
type MessageRef struct {
	Address   string
	MessageID int
}

// ActionEvent is a button press on a previously delivered notification.
type ActionEvent struct {
	Kind    ActionKind
	TaskID  string
	Message MessageRef
}

// Notifier delivers notifications with response buttons.
type Notifier interface {
	Deliver(ctx context.Context, address, text string, actions [][]Action) (MessageRef, error)
	DisableActions(ctx context.Context, ref MessageRef) error
}

// EncodeAction renders the button payload as "kind:taskId".
func EncodeAction(kind ActionKind, taskID string) string {
	return string(kind) + ":" + taskID
}

// DecodeAction parses a "kind:taskId" payload. Unknown kinds are returned
// as-is; ok is false only when the payload is not two non-empty fields.
func DecodeAction(data string) (ActionKind, string, bool) {
	kind, taskID, found := strings.Cut(data, ":")
	if !found || kind == "" || taskID == "" || strings.Contains(taskID, ":") {
		return "", "", false
	}
	if kind == legacyProgress {
		return ActionInProgress, taskID, true
	}
	return ActionKind(kind), taskID, true
}

// Keyboard is the button layout of a reminder for taskID.
func Keyboard(taskID string) [][]Action {
	return [][]Action{
		{
			{Label: "✅ Выполнено", Kind: ActionDone, TaskID: taskID},
			{Label: "⏳ В процессе", Kind: ActionInProgress, TaskID: taskID},
		},
		{
			{Label: "⏰ Отложить на 1ч", Kind: ActionSnooze, TaskID: taskID},
		},
	}
}
