package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
)

// GetOrCreateUser registers a chat user by external id. An existing user keeps
// its id; a non-empty display name or address replaces the stored one. A new
// user without an address is addressed by its external id.
func (s *Store) GetOrCreateUser(ctx context.Context, externalID, displayName, address string) (domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.User{}, fmt.Errorf("%w: external id is required", ErrInvalid)
	}
	address = strings.TrimSpace(address)
	initial := address
	if initial == "" {
		initial = externalID
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO users (id, external_id, display_name, address, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END,
			address = CASE WHEN CAST(? AS TEXT) <> '' THEN excluded.address ELSE users.address END`,
		newID("usr"), externalID, strings.TrimSpace(displayName), initial, timeNow(), address)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.userBy(ctx, "external_id", externalID)
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.userBy(ctx, "id", id)
}

func (s *Store) userBy(ctx context.Context, column, value string) (domain.User, error) {
	var u domain.User
	err := s.queryRow(ctx, s.db,
		`SELECT id, external_id, display_name, address, created_at FROM users WHERE `+column+` = ?`, value).
		Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.Address, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, notFound("user", value)
	}
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// GetOrCreateProject finds the owner's project by name, ignoring case, and
// creates it when missing. The first spelling of the name is kept.
func (s *Store) GetOrCreateProject(ctx context.Context, ownerID, name string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, fmt.Errorf("%w: project name is required", ErrInvalid)
	}
	key := nameKey(name)

	_, err := s.exec(ctx, s.db, `
		INSERT INTO projects (id, owner_id, name, name_key, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, name_key) DO NOTHING`,
		newID("prj"), ownerID, name, key, timeNow())
	if err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", invalidRef(err, "owner"))
	}

	var p domain.Project
	err = s.queryRow(ctx, s.db,
		`SELECT id, owner_id, name, created_at FROM projects WHERE owner_id = ? AND name_key = ?`, ownerID, key).
		Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt)
	if err != nil {
		return domain.Project{}, fmt.Errorf("load project %q: %w", name, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// ListProjects returns the owner's projects by name with their task counts.
func (s *Store) ListProjects(ctx context.Context, ownerID string) ([]domain.ProjectSummary, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT p.id, p.owner_id, p.name, p.created_at, COUNT(t.id)
		FROM projects p
		LEFT JOIN tasks t ON t.project_id = p.id
		WHERE p.owner_id = ?
		GROUP BY p.id, p.owner_id, p.name, p.name_key, p.created_at
		ORDER BY p.name_key`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ProjectSummary{}
	for rows.Next() {
		var ps domain.ProjectSummary
		if err := rows.Scan(&ps.ID, &ps.OwnerID, &ps.Name, &ps.CreatedAt, &ps.TaskCount); err != nil {
			return nil, err
		}
		ps.CreatedAt = ps.CreatedAt.UTC()
		out = append(out, ps)
	}
	return out, rows.Err()
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	OwnerID   string
	ProjectID string
	Status    domain.TaskStatus
	// Open drops done and cancelled tasks.
	Open      bool
	DueFrom   *time.Time // inclusive
	DueBefore *time.Time // exclusive
	Limit     int
}

// TaskPatch holds the dashboard-editable fields. Nil fields are unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	DueAt       *time.Time
	ClearDue    bool
	Status      *domain.TaskStatus
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueAt == nil && !p.ClearDue && p.Status == nil
}

// DueChanged reports whether applying the patch moves or clears the due time.
func (p TaskPatch) DueChanged() bool {
	return p.DueAt != nil || p.ClearDue
}

const taskColumns = `t.id, t.owner_id, t.project_id, t.title, t.description, t.tags, t.due_at, t.status, t.created_at, t.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner, extra ...any) (domain.Task, error) {
	var (
		t         domain.Task
		projectID sql.NullString
		tags      string
		due       sql.NullTime
		status    string
	)
	dest := append([]any{&t.ID, &t.OwnerID, &projectID, &t.Title, &t.Description, &tags, &due, &status, &t.CreatedAt, &t.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Task{}, err
	}
	t.ProjectID = projectID.String
	t.Tags = decodeTags(tags)
	t.DueAt = timePtr(due)
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

// InsertTask persists a new task and returns it with its id and timestamps.
func (s *Store) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if strings.TrimSpace(t.OwnerID) == "" {
		return domain.Task{}, fmt.Errorf("%w: owner is required", ErrInvalid)
	}
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if _, ok := domain.ParseStatus(string(t.Status)); !ok {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, t.Status)
	}
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return domain.Task{}, err
	}

	now := timeNow()
	t.ID = newID("tsk")
	t.CreatedAt, t.UpdatedAt = now, now
	if t.DueAt != nil {
		due := t.DueAt.UTC()
		t.DueAt = &due
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO tasks (id, owner_id, project_id, title, description, tags, due_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, sql.NullString{String: t.ProjectID, Valid: t.ProjectID != ""}, t.Title, t.Description,
		tags, nullTime(t.DueAt), string(t.Status), now, now)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", invalidRef(err, "owner or project"))
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return s.getTask(ctx, s.db, id)
}

func (s *Store) getTask(ctx context.Context, q querier, id string) (domain.Task, error) {
	t, err := scanTask(s.queryRow(ctx, q, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, notFound("task", id)
	}
	return t, err
}

// GetTaskByPrefix resolves a full id or an unambiguous id prefix.
func (s *Store) GetTaskByPrefix(ctx context.Context, ownerID, prefix string) (domain.Task, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return domain.Task{}, fmt.Errorf("%w: task id is required", ErrInvalid)
	}
	if !strings.HasPrefix(strings.ToLower(prefix), "tsk_") {
		prefix = "tsk_" + prefix
	}
	prefix = "tsk_" + strings.ToUpper(prefix[len("tsk_"):])

	rows, err := s.query(ctx, s.db,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.owner_id = ? AND t.id LIKE ? ESCAPE '\' ORDER BY t.id LIMIT 10`,
		ownerID, escapeLike(prefix)+"%")
	if err != nil {
		return domain.Task{}, err
	}
	defer rows.Close()

	var matches []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return domain.Task{}, err
		}
		if t.ID == prefix {
			return t, nil
		}
		matches = append(matches, t)
	}
	if err := rows.Err(); err != nil {
		return domain.Task{}, err
	}
	switch len(matches) {
	case 0:
		return domain.Task{}, notFound("task", prefix)
	case 1:
		return matches[0], nil
	default:
		return domain.Task{}, &MatchConflictError{
			Reason:  fmt.Sprintf("%d tasks match %q", len(matches), prefix),
			Matches: matches,
		}
	}
}

// ListTasks returns tasks newest first.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "t.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.ProjectID != "" {
		where = append(where, "t.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Open {
		where = append(where, "t.status NOT IN (?, ?)")
		args = append(args, string(domain.StatusDone), string(domain.StatusCancelled))
	}
	if f.DueFrom != nil {
		where = append(where, "t.due_at >= ?")
		args = append(args, f.DueFrom.UTC())
	}
	if f.DueBefore != nil {
		where = append(where, "t.due_at < ?")
		args = append(args, f.DueBefore.UTC())
	}

	query := `SELECT ` + taskColumns + ` FROM tasks t`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTaskStatus moves a task to status. The transition is checked against
// the stored status inside the same transaction.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus) (domain.Task, error) {
	return s.UpdateTask(ctx, id, TaskPatch{Status: &status})
}

// UpdateTask applies patch and returns the updated task.
func (s *Store) UpdateTask(ctx context.Context, id string, patch TaskPatch) (domain.Task, error) {
	var out domain.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := s.getTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Empty() {
			out = t
			return nil
		}
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return fmt.Errorf("%w: title is required", ErrInvalid)
			}
			t.Title = title
		}
		if patch.Description != nil {
			t.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ClearDue {
			t.DueAt = nil
		} else if patch.DueAt != nil {
			due := patch.DueAt.UTC()
			t.DueAt = &due
		}
		if patch.Status != nil {
			if err := domain.CheckTransition(t.Status, *patch.Status); err != nil {
				return err
			}
			t.Status = *patch.Status
		}
		t.UpdatedAt = timeNow()

		_, err = s.exec(ctx, tx, `
			UPDATE tasks SET title = ?, description = ?, due_at = ?, status = ?, updated_at = ?
			WHERE id = ?`,
			t.Title, t.Description, nullTime(t.DueAt), string(t.Status), t.UpdatedAt, t.ID)
		if err != nil {
			return fmt.Errorf("update task %s: %w", id, err)
		}
		out = t
		return nil
	})
	return out, err
}

// DeleteTask removes a task together with all of its reminders.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM reminders WHERE task_id = ?`, id); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("task", id)
		}
		return nil
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
