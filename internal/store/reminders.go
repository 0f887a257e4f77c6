package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
)

func (s *Store) InsertReminder(ctx context.Context, taskID string, scheduledAt time.Time) (domain.Reminder, error) {
	if strings.TrimSpace(taskID) == "" {
		return domain.Reminder{}, fmt.Errorf("%w: task id is required", ErrInvalid)
	}
	r := domain.Reminder{
		ID:          newID("rem"),
		TaskID:      taskID,
		ScheduledAt: scheduledAt.UTC(),
		CreatedAt:   timeNow(),
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO reminders (id, task_id, scheduled_at, sent, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.ScheduledAt, false, r.CreatedAt)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("insert reminder: %w", invalidRef(err, "task"))
	}
	return r, nil
}

// DeletePendingReminders drops the task's unsent reminders.
func (s *Store) DeletePendingReminders(ctx context.Context, taskID string) (int, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM reminders WHERE task_id = ? AND NOT sent`, taskID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FindDueUnsent returns unsent reminders scheduled at or before now, oldest
// first, joined with their task and the owner's address.
func (s *Store) FindDueUnsent(ctx context.Context, now time.Time, limit int) ([]domain.DueReminder, error) {
	query := `
		SELECT ` + taskColumns + `, r.id, r.scheduled_at, r.created_at, u.address
		FROM reminders r
		JOIN tasks t ON t.id = r.task_id
		JOIN users u ON u.id = t.owner_id
		WHERE NOT r.sent AND r.scheduled_at <= ?
		ORDER BY r.scheduled_at, r.id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.query(ctx, s.db, query, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DueReminder{}
	for rows.Next() {
		var d domain.DueReminder
		task, err := scanTask(rows, &d.Reminder.ID, &d.Reminder.ScheduledAt, &d.Reminder.CreatedAt, &d.Address)
		if err != nil {
			return nil, err
		}
		d.Task = task
		d.Reminder.TaskID = task.ID
		d.Reminder.ScheduledAt = d.Reminder.ScheduledAt.UTC()
		d.Reminder.CreatedAt = d.Reminder.CreatedAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkSent records a successful delivery. Marking twice is a no-op.
func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE reminders SET sent = ?, sent_at = ? WHERE id = ? AND NOT sent`, true, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM reminders WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return notFound("reminder", id)
		}
	}
	return nil
}

// ListReminders returns the task's reminders in schedule order.
func (s *Store) ListReminders(ctx context.Context, taskID string) ([]domain.Reminder, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, task_id, scheduled_at, sent, sent_at, created_at
		FROM reminders WHERE task_id = ?
		ORDER BY scheduled_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Reminder{}
	for rows.Next() {
		var (
			r      domain.Reminder
			sentAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.ScheduledAt, &r.Sent, &sentAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ScheduledAt = r.ScheduledAt.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		r.SentAt = timePtr(sentAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
