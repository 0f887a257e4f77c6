package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/intake"
	"github.com/amirbrooks/taskbot/internal/reminder"
	"github.com/amirbrooks/taskbot/internal/store"
)

var ref = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

// --- fakes ---

type memStore struct {
	seq       int
	users     map[string]domain.User
	projects  map[string]domain.Project
	tasks     map[string]domain.Task
	reminders map[string]domain.Reminder

	insertTaskFn     func(domain.Task) (domain.Task, error)
	insertReminderFn func(taskID string, at time.Time) (domain.Reminder, error)
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]domain.User{},
		projects:  map[string]domain.Project{},
		tasks:     map[string]domain.Task{},
		reminders: map[string]domain.Reminder{},
	}
}

func (m *memStore) id(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_%03d", prefix, m.seq)
}

func (m *memStore) GetOrCreateUser(_ context.Context, externalID, name, address string) (domain.User, error) {
	if u, ok := m.users[externalID]; ok {
		return u, nil
	}
	u := domain.User{ID: m.id("usr"), ExternalID: externalID, DisplayName: name, Address: address}
	m.users[externalID] = u
	return u, nil
}

func (m *memStore) GetOrCreateProject(_ context.Context, ownerID, name string) (domain.Project, error) {
	key := ownerID + "/" + strings.ToLower(name)
	if p, ok := m.projects[key]; ok {
		return p, nil
	}
	p := domain.Project{ID: m.id("prj"), OwnerID: ownerID, Name: name}
	m.projects[key] = p
	return p, nil
}

func (m *memStore) ListProjects(_ context.Context, ownerID string) ([]domain.ProjectSummary, error) {
	var out []domain.ProjectSummary
	for _, p := range m.projects {
		if p.OwnerID == ownerID {
			out = append(out, domain.ProjectSummary{Project: p})
		}
	}
	return out, nil
}

func (m *memStore) InsertTask(_ context.Context, t domain.Task) (domain.Task, error) {
	if m.insertTaskFn != nil {
		return m.insertTaskFn(t)
	}
	t.ID = m.id("tsk")
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memStore) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memStore) GetTaskByPrefix(_ context.Context, ownerID, prefix string) (domain.Task, error) {
	for _, t := range m.tasks {
		if t.OwnerID == ownerID && strings.HasPrefix(t.ID, prefix) {
			return t, nil
		}
	}
	return domain.Task{}, store.ErrNotFound
}

func (m *memStore) ListTasks(_ context.Context, f store.TaskFilter) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range m.tasks {
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.Open && t.Status.Closed() {
			continue
		}
		if f.DueFrom != nil && (t.DueAt == nil || t.DueAt.Before(*f.DueFrom)) {
			continue
		}
		if f.DueBefore != nil && (t.DueAt == nil || !t.DueAt.Before(*f.DueBefore)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateTask(_ context.Context, id string, p store.TaskPatch) (domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, store.ErrNotFound
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ClearDue {
		t.DueAt = nil
	} else if p.DueAt != nil {
		t.DueAt = p.DueAt
	}
	if p.Status != nil {
		if err := domain.CheckTransition(t.Status, *p.Status); err != nil {
			return domain.Task{}, err
		}
		t.Status = *p.Status
	}
	m.tasks[id] = t
	return t, nil
}

func (m *memStore) DeleteTask(_ context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tasks, id)
	for rid, r := range m.reminders {
		if r.TaskID == id {
			delete(m.reminders, rid)
		}
	}
	return nil
}

func (m *memStore) InsertReminder(_ context.Context, taskID string, at time.Time) (domain.Reminder, error) {
	if m.insertReminderFn != nil {
		return m.insertReminderFn(taskID, at)
	}
	r := domain.Reminder{ID: m.id("rem"), TaskID: taskID, ScheduledAt: at}
	m.reminders[r.ID] = r
	return r, nil
}

func (m *memStore) DeletePendingReminders(_ context.Context, taskID string) (int, error) {
	n := 0
	for id, r := range m.reminders {
		if r.TaskID == taskID && !r.Sent {
			delete(m.reminders, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) remindersFor(taskID string) []domain.Reminder {
	var out []domain.Reminder
	for _, r := range m.reminders {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out
}

type fakeCalendar struct {
	published []string
	completed []string
	removed   []string
	err       error
}

func (c *fakeCalendar) Publish(_ context.Context, t domain.Task) error {
	c.published = append(c.published, t.ID)
	return c.err
}

func (c *fakeCalendar) Complete(_ context.Context, t domain.Task) error {
	c.completed = append(c.completed, t.ID)
	return c.err
}

func (c *fakeCalendar) Remove(_ context.Context, id string) error {
	c.removed = append(c.removed, id)
	return c.err
}

func newTestService(t *testing.T, st *memStore, cal CalendarMirror) *TaskService {
	t.Helper()
	resolver := intake.NewResolver(intake.Options{Location: time.UTC})
	pipeline, err := intake.NewPipeline(st, resolver, 0)
	if err != nil {
		t.Fatalf("NewPipeline() err=%v", err)
	}
	scheduler, err := reminder.NewScheduler(st, 0)
	if err != nil {
		t.Fatalf("NewScheduler() err=%v", err)
	}
	svc, err := New(st, pipeline, scheduler, Options{
		Location: time.UTC,
		Now:      func() time.Time { return ref },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Calendar: cal,
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return svc
}

// --- tests ---

func TestNew_NilDependencies(t *testing.T) {
	st := newMemStore()
	pipeline, _ := intake.NewPipeline(st, nil, 0)
	scheduler, _ := reminder.NewScheduler(st, 0)

	if _, err := New(nil, pipeline, scheduler, Options{}); !errors.Is(err, ErrStoreNil) {
		t.Fatalf("New() err=%v, want %v", err, ErrStoreNil)
	}
	if _, err := New(st, nil, scheduler, Options{}); !errors.Is(err, ErrPipelineNil) {
		t.Fatalf("New() err=%v, want %v", err, ErrPipelineNil)
	}
	if _, err := New(st, pipeline, nil, Options{}); !errors.Is(err, ErrSchedulerNil) {
		t.Fatalf("New() err=%v, want %v", err, ErrSchedulerNil)
	}
}

func TestSubmit_StoresTaskAndReminder(t *testing.T) {
	st := newMemStore()
	cal := &fakeCalendar{}
	svc := newTestService(t, st, cal)

	got, err := svc.Submit(context.Background(), "usr_1", "Купить молоко завтра #Дом")
	if err != nil {
		t.Fatalf("Submit() err=%v", err)
	}
	if got.Task.ID == "" || got.Task.Title != "Купить молоко" || got.Task.Status != domain.StatusTodo {
		t.Fatalf("Submit() task=%+v", got.Task)
	}
	if got.Project == nil || got.Project.Name != "Дом" || got.Task.ProjectID != got.Project.ID {
		t.Fatalf("Submit() project=%+v", got.Project)
	}
	wantDue := time.Date(2024, 3, 11, 18, 0, 0, 0, time.UTC)
	if got.Task.DueAt == nil || !got.Task.DueAt.Equal(wantDue) {
		t.Fatalf("DueAt=%v, want %v", got.Task.DueAt, wantDue)
	}
	rems := st.remindersFor(got.Task.ID)
	if got.Reminder == nil || len(rems) != 1 || !rems[0].ScheduledAt.Equal(wantDue.Add(-15*time.Minute)) {
		t.Fatalf("reminders=%+v", rems)
	}
	if len(cal.published) != 1 || cal.published[0] != got.Task.ID {
		t.Fatalf("calendar published=%v", cal.published)
	}
}

func TestSubmit_NoDue(t *testing.T) {
	st := newMemStore()
	cal := &fakeCalendar{}
	svc := newTestService(t, st, cal)

	got, err := svc.Submit(context.Background(), "usr_1", "почитать")
	if err != nil {
		t.Fatalf("Submit() err=%v", err)
	}
	if got.Reminder != nil || len(st.reminders) != 0 {
		t.Fatalf("reminder created for a task without due time")
	}
	if len(cal.published) != 0 {
		t.Fatalf("undated task published to calendar")
	}
}

func TestSubmit_Errors(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, st, nil)

	if _, err := svc.Submit(context.Background(), "usr_1", "   "); !errors.Is(err, ErrInvalidInput) || !errors.Is(err, intake.ErrEmptyMessage) {
		t.Fatalf("Submit(empty) err=%v", err)
	}

	st.insertTaskFn = func(domain.Task) (domain.Task, error) { return domain.Task{}, errors.New("db down") }
	if _, err := svc.Submit(context.Background(), "usr_1", "x"); err == nil || errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Submit(store failure) err=%v", err)
	}
}

func TestSubmit_ScheduleFailureLeavesNoTask(t *testing.T) {
	st := newMemStore()
	cal := &fakeCalendar{}
	svc := newTestService(t, st, cal)
	st.insertReminderFn = func(string, time.Time) (domain.Reminder, error) {
		return domain.Reminder{}, errors.New("db down")
	}

	got, err := svc.Submit(context.Background(), "usr_1", "Купить молоко сегодня")
	if err == nil {
		t.Fatal("Submit() err=nil, want schedule failure")
	}
	if got.Task.ID != "" {
		t.Fatalf("Submit() returned task %+v after failure", got.Task)
	}
	if len(st.tasks) != 0 || len(st.reminders) != 0 {
		t.Fatalf("tasks=%d reminders=%d, want none", len(st.tasks), len(st.reminders))
	}
	if len(cal.published) != 0 {
		t.Fatalf("calendar published=%v", cal.published)
	}
}

func TestSubmit_CalendarFailureIgnored(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, st, &fakeCalendar{err: errors.New("quota")})

	if _, err := svc.Submit(context.Background(), "usr_1", "созвон в 15:00"); err != nil {
		t.Fatalf("Submit() err=%v", err)
	}
}

func TestToday(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, st, nil)
	ctx := context.Background()

	today, _ := svc.Submit(ctx, "usr_1", "a сегодня")
	_, _ = svc.Submit(ctx, "usr_1", "b завтра")
	_, _ = svc.Submit(ctx, "usr_1", "c")
	done, _ := svc.Submit(ctx, "usr_1", "d сегодня")
	if _, err := svc.UpdateTaskStatus(ctx, done.Task.ID, domain.StatusDone); err != nil {
		t.Fatalf("UpdateTaskStatus() err=%v", err)
	}

	got, err := svc.Today(ctx, "usr_1")
	if err != nil {
		t.Fatalf("Today() err=%v", err)
	}
	if len(got) != 1 || got[0].ID != today.Task.ID {
		t.Fatalf("Today() = %+v", got)
	}
}

func TestBoard_GroupsByStatus(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, st, nil)
	ctx := context.Background()

	a, _ := svc.Submit(ctx, "usr_1", "a")
	_, _ = svc.Submit(ctx, "usr_1", "b")
	if _, err := svc.UpdateTaskStatus(ctx, a.Task.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("UpdateTaskStatus() err=%v", err)
	}

	board, err := svc.Board(ctx, "usr_1", "")
	if err != nil {
		t.Fatalf("Board() err=%v", err)
	}
	if len(board) != 4 || board[0].Status != domain.StatusTodo || board[1].Status != domain.StatusInProgress {
		t.Fatalf("Board() columns=%+v", board)
	}
	if len(board[0].Tasks) != 1 || len(board[1].Tasks) != 1 || len(board[2].Tasks) != 0 || board[2].Tasks == nil {
		t.Fatalf("Board() = %+v", board)
	}
}

func TestUpdate_DueChangeReschedules(t *testing.T) {
	st := newMemStore()
	cal := &fakeCalendar{}
	svc := newTestService(t, st, cal)
	ctx := context.Background()

	c, _ := svc.Submit(ctx, "usr_1", "отчёт завтра")
	moved := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

	if _, err := svc.Update(ctx, c.Task.ID, store.TaskPatch{DueAt: &moved}); err != nil {
		t.Fatalf("Update() err=%v", err)
	}
	rems := st.remindersFor(c.Task.ID)
	if len(rems) != 1 || !rems[0].ScheduledAt.Equal(moved.Add(-15*time.Minute)) {
		t.Fatalf("reminders=%+v", rems)
	}
	if len(cal.published) != 2 {
		t.Fatalf("calendar published=%v, want create and update", cal.published)
	}

	if _, err := svc.Update(ctx, c.Task.ID, store.TaskPatch{ClearDue: true}); err != nil {
		t.Fatalf("Update(clear due) err=%v", err)
	}
	if rems := st.remindersFor(c.Task.ID); len(rems) != 0 {
		t.Fatalf("reminders=%+v after clearing due", rems)
	}
	if len(cal.removed) != 1 {
		t.Fatalf("calendar removed=%v", cal.removed)
	}
}

func TestUpdate_TitleOnlyKeepsReminders(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, st, nil)
	ctx := context.Background()

	c, _ := svc.Submit(ctx, "usr_1", "отчёт завтра")
	before := st.remindersFor(c.Task.ID)
	title := "годовой отчёт"
	got, err := svc.Update(ctx, c.Task.ID, store.TaskPatch{Title: &title})
	if err != nil || got.Title != title {
		t.Fatalf("Update() = %+v, %v", got, err)
	}
	after := st.remindersFor(c.Task.ID)
	if len(after) != 1 || after[0].ID != before[0].ID {
		t.Fatalf("reminders changed: %+v -> %+v", before, after)
	}
}

func TestUpdate_Validation(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, st, nil)
	ctx := context.Background()
	c, _ := svc.Submit(ctx, "usr_1", "x")

	bad := domain.TaskStatus("blocked")
	if _, err := svc.Update(ctx, c.Task.ID, store.TaskPatch{Status: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Update(bad status) err=%v", err)
	}
	blank := "  "
	if _, err := svc.Update(ctx, c.Task.ID, store.TaskPatch{Title: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Update(blank title) err=%v", err)
	}
	if _, err := svc.UpdateTaskStatus(ctx, "tsk_missing", domain.StatusDone); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateTaskStatus(missing) err=%v", err)
	}
}

func TestUpdateTaskStatus_CompletesCalendarEvent(t *testing.T) {
	st := newMemStore()
	cal := &fakeCalendar{}
	svc := newTestService(t, st, cal)
	ctx := context.Background()
	c, _ := svc.Submit(ctx, "usr_1", "созвон в 15:00")

	if _, err := svc.UpdateTaskStatus(ctx, c.Task.ID, domain.StatusDone); err != nil {
		t.Fatalf("UpdateTaskStatus() err=%v", err)
	}
	if _, err := svc.UpdateTaskStatus(ctx, c.Task.ID, domain.StatusDone); err != nil {
		t.Fatalf("UpdateTaskStatus() again err=%v", err)
	}
	if len(cal.completed) != 1 {
		t.Fatalf("calendar completed=%v, want once", cal.completed)
	}
	if _, err := svc.UpdateTaskStatus(ctx, c.Task.ID, domain.StatusInProgress); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("reopen err=%v", err)
	}
}

func TestDelete(t *testing.T) {
	st := newMemStore()
	cal := &fakeCalendar{}
	svc := newTestService(t, st, cal)
	ctx := context.Background()
	c, _ := svc.Submit(ctx, "usr_1", "x сегодня")

	if err := svc.Delete(ctx, c.Task.ID); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	if len(st.reminders) != 0 || len(cal.removed) != 1 {
		t.Fatalf("reminders=%d removed=%v", len(st.reminders), cal.removed)
	}
	if err := svc.Delete(ctx, c.Task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete() err=%v", err)
	}
}

func TestPreview(t *testing.T) {
	svc := newTestService(t, newMemStore(), nil)
	p := svc.Preview("встреча в 9:30 #работа")
	if p.Title != "встреча в" || len(p.Tags) != 1 || p.DueAt == nil {
		t.Fatalf("Preview() = %+v", p)
	}
	want := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)
	if !p.DueAt.Equal(want) {
		t.Fatalf("DueAt=%v, want %v", p.DueAt, want)
	}
}
