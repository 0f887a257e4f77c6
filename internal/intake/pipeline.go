package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirbrooks/taskbot/internal/domain"
)

// DefaultReminderLead is how long before the due time a reminder fires.
const DefaultReminderLead = 15 * time.Minute

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoOwner      = errors.New("owner is required")
	ErrProjectsNil  = errors.New("project directory is nil")
)

// ProjectDirectory looks a project up by name (case-insensitive, scoped to
// the owner) and creates it when missing.
type ProjectDirectory interface {
	GetOrCreateProject(ctx context.Context, ownerID, name string) (domain.Project, error)
}

// Parsed is the side-effect free interpretation of a message.
type Parsed struct {
	Title string
	Tags  []string
	DueAt *time.Time
}

// Candidate is a task ready to be persisted, plus its first reminder when
// the message carried a due time.
type Candidate struct {
	Task     domain.Task
	Project  *domain.Project
	Reminder *domain.Reminder
}

// Parse interprets text with the default resolver.
func Parse(text string, now time.Time) Parsed {
	return defaultResolver.Parse(text, now)
}

func (r *Resolver) Parse(text string, now time.Time) Parsed {
	p := Parsed{
		Title: r.Normalize(text),
		Tags:  ExtractTags(text),
	}
	if due, ok := r.Resolve(text, now); ok {
		p.DueAt = &due
	}
	if p.Title == "" {
		// nothing but tags and dates: keep the message as written
		p.Title = collapseSpaces(text)
	}
	return p
}

type Pipeline struct {
	projects ProjectDirectory
	resolver *Resolver
	lead     time.Duration
}

func NewPipeline(projects ProjectDirectory, resolver *Resolver, lead time.Duration) (*Pipeline, error) {
	if projects == nil {
		return nil, ErrProjectsNil
	}
	if resolver == nil {
		resolver = defaultResolver
	}
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	return &Pipeline{projects: projects, resolver: resolver, lead: lead}, nil
}

// Build turns a raw message into a candidate task owned by ownerID. The
// first tag is bound to a project, which may be created as a side effect.
func (p *Pipeline) Build(ctx context.Context, ownerID, text string, now time.Time) (Candidate, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Candidate{}, ErrNoOwner
	}
	if strings.TrimSpace(text) == "" {
		return Candidate{}, ErrEmptyMessage
	}

	parsed := p.resolver.Parse(text, now)
	c := Candidate{
		Task: domain.Task{
			OwnerID: ownerID,
			Title:   parsed.Title,
			Tags:    parsed.Tags,
			DueAt:   parsed.DueAt,
			Status:  domain.StatusTodo,
		},
	}

	if len(parsed.Tags) > 0 {
		project, err := p.projects.GetOrCreateProject(ctx, ownerID, parsed.Tags[0])
		if err != nil {
			return Candidate{}, fmt.Errorf("resolve project %q: %w", parsed.Tags[0], err)
		}
		c.Project = &project
		c.Task.ProjectID = project.ID
	}

	if parsed.DueAt != nil {
		c.Reminder = &domain.Reminder{ScheduledAt: parsed.DueAt.Add(-p.lead)}
	}
	return c, nil
}

// Resolver exposes the resolver the pipeline interprets text with.
func (p *Pipeline) Resolver() *Resolver {
	return p.resolver
}
