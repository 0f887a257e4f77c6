package intake

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
)

// --- fakes ---

type fakeProjects struct {
	byKey map[string]domain.Project
	calls []string
	err   error
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{byKey: map[string]domain.Project{}}
}

func (f *fakeProjects) GetOrCreateProject(_ context.Context, ownerID, name string) (domain.Project, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return domain.Project{}, f.err
	}
	key := ownerID + "/" + strings.ToLower(name)
	if p, ok := f.byKey[key]; ok {
		return p, nil
	}
	p := domain.Project{ID: "prj_" + strings.ToLower(name), OwnerID: ownerID, Name: name}
	f.byKey[key] = p
	return p, nil
}

// --- tests ---

func TestNewPipeline_NilProjects(t *testing.T) {
	_, err := NewPipeline(nil, nil, 0)
	if !errors.Is(err, ErrProjectsNil) {
		t.Fatalf("NewPipeline() err=%v, want %v", err, ErrProjectsNil)
	}
}

func TestBuild_TaskWithProjectAndReminder(t *testing.T) {
	projects := newFakeProjects()
	p, err := NewPipeline(projects, nil, 0)
	if err != nil {
		t.Fatalf("NewPipeline() err=%v", err)
	}

	c, err := p.Build(context.Background(), "usr_1", "Купить молоко сегодня #дом #срочно", ref)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}

	if c.Task.Title != "Купить молоко" {
		t.Fatalf("Title=%q, want %q", c.Task.Title, "Купить молоко")
	}
	if !reflect.DeepEqual(c.Task.Tags, []string{"дом", "срочно"}) {
		t.Fatalf("Tags=%#v", c.Task.Tags)
	}
	if c.Task.Status != domain.StatusTodo {
		t.Fatalf("Status=%s, want %s", c.Task.Status, domain.StatusTodo)
	}
	if c.Task.OwnerID != "usr_1" {
		t.Fatalf("OwnerID=%q", c.Task.OwnerID)
	}
	if c.Project == nil || c.Project.Name != "дом" || c.Task.ProjectID != c.Project.ID {
		t.Fatalf("Project=%+v ProjectID=%q", c.Project, c.Task.ProjectID)
	}
	if len(projects.calls) != 1 {
		t.Fatalf("GetOrCreateProject calls=%v, want only the first tag", projects.calls)
	}
	if c.Task.DueAt == nil || !c.Task.DueAt.Equal(at(10, 18, 0)) {
		t.Fatalf("DueAt=%v", c.Task.DueAt)
	}
	if c.Reminder == nil || !c.Reminder.ScheduledAt.Equal(at(10, 17, 45)) {
		t.Fatalf("Reminder=%+v, want scheduled at %v", c.Reminder, at(10, 17, 45))
	}
}

func TestBuild_NoDueNoReminder(t *testing.T) {
	p, _ := NewPipeline(newFakeProjects(), nil, 0)

	c, err := p.Build(context.Background(), "usr_1", "прочитать книгу", ref)
	if err != nil {
		t.Fatalf("Build() err=%v", err)
	}
	if c.Task.DueAt != nil || c.Reminder != nil {
		t.Fatalf("DueAt=%v Reminder=%v, want none", c.Task.DueAt, c.Reminder)
	}
	if c.Project != nil || c.Task.ProjectID != "" {
		t.Fatalf("Project=%+v, want none", c.Project)
	}
}

func TestBuild_CustomLead(t *testing.T) {
	p, _ := NewPipeline(newFakeProjects(), nil, time.Hour)

	c, _ := p.Build(context.Background(), "usr_1", "встреча в 15:00", ref)
	if c.Reminder == nil || !c.Reminder.ScheduledAt.Equal(at(10, 14, 0)) {
		t.Fatalf("Reminder=%+v, want 14:00", c.Reminder)
	}
}

func TestBuild_ProjectError(t *testing.T) {
	projects := newFakeProjects()
	projects.err = errors.New("db down")
	p, _ := NewPipeline(projects, nil, 0)

	_, err := p.Build(context.Background(), "usr_1", "x #work", ref)
	if err == nil || !errors.Is(err, projects.err) {
		t.Fatalf("Build() err=%v, want wrapped %v", err, projects.err)
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	p, _ := NewPipeline(newFakeProjects(), nil, 0)

	if _, err := p.Build(context.Background(), "usr_1", "   ", ref); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Build(empty) err=%v, want %v", err, ErrEmptyMessage)
	}
	if _, err := p.Build(context.Background(), "", "x", ref); !errors.Is(err, ErrNoOwner) {
		t.Fatalf("Build(no owner) err=%v, want %v", err, ErrNoOwner)
	}
}
