package store

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/taskbot/internal/domain"
)

// TaskDocument is the YAML frontmatter of an exported task.
type TaskDocument struct {
	Schema    int                `yaml:"schema"`
	ID        string             `yaml:"id"`
	Title     string             `yaml:"title"`
	Status    string             `yaml:"status"`
	Project   string             `yaml:"project,omitempty"`
	Tags      []string           `yaml:"tags,omitempty"`
	Due       *time.Time         `yaml:"due,omitempty"`
	CreatedAt time.Time          `yaml:"created_at"`
	UpdatedAt time.Time          `yaml:"updated_at"`
	Reminders []ReminderDocument `yaml:"reminders,omitempty"`
}

type ReminderDocument struct {
	At   time.Time `yaml:"at"`
	Sent bool      `yaml:"sent"`
}

// ExportMarkdown writes each task matching f as a markdown file with YAML
// frontmatter under dir/<project>/. It returns the written paths.
func (s *Store) ExportMarkdown(ctx context.Context, dir string, f TaskFilter) ([]string, error) {
	dir = expandHome(dir)
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: export directory is required", ErrInvalid)
	}
	tasks, err := s.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}

	projectNames := map[string]string{}
	if f.OwnerID != "" {
		projects, err := s.ListProjects(ctx, f.OwnerID)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			projectNames[p.ID] = p.Name
		}
	}

	var paths []string
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		reminders, err := s.ListReminders(ctx, t.ID)
		if err != nil {
			return paths, err
		}
		doc := newTaskDocument(t, projectNames[t.ProjectID], reminders)

		folder := "inbox"
		if doc.Project != "" {
			folder = slugify(doc.Project)
		}
		path := filepath.Join(dir, folder, fmt.Sprintf("%s__%s.md", t.ID, slugify(t.Title)))
		if err := writeTaskFile(path, doc, t.Description); err != nil {
			return paths, fmt.Errorf("export %s: %w", t.ID, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func newTaskDocument(t domain.Task, project string, reminders []domain.Reminder) TaskDocument {
	doc := TaskDocument{
		Schema:    1,
		ID:        t.ID,
		Title:     t.Title,
		Status:    string(t.Status),
		Project:   project,
		Tags:      t.Tags,
		Due:       t.DueAt,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	for _, r := range reminders {
		doc.Reminders = append(doc.Reminders, ReminderDocument{At: r.ScheduledAt, Sent: r.Sent})
	}
	return doc
}

// ReadExportedTask parses a file written by ExportMarkdown.
func ReadExportedTask(path string) (TaskDocument, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return TaskDocument{}, "", err
	}
	return parseFrontmatter(b)
}

func writeTaskFile(path string, doc TaskDocument, body string) error {
	yamlBytes, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yamlBytes)
	buf.WriteString("---\n\n")
	if strings.TrimSpace(body) != "" {
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return atomicWriteFile(path, buf.Bytes(), 0o644)
}

func parseFrontmatter(b []byte) (TaskDocument, string, error) {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return TaskDocument{}, "", fmt.Errorf("%w: missing frontmatter", ErrInvalid)
	}
	parts := strings.SplitN(s, "\n---\n", 2)
	if len(parts) != 2 {
		return TaskDocument{}, "", fmt.Errorf("%w: invalid frontmatter delimiters", ErrInvalid)
	}
	var doc TaskDocument
	if err := yaml.Unmarshal([]byte(strings.TrimPrefix(parts[0], "---\n")), &doc); err != nil {
		return TaskDocument{}, "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc.Schema == 0 {
		doc.Schema = 1
	}
	return doc, strings.TrimLeft(parts[1], "\n"), nil
}

// slugify keeps letters and digits of any script and joins the rest with hyphens.
func slugify(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "x"
	}
	if r := []rune(out); len(r) > 48 {
		out = strings.Trim(string(r[:48]), "-")
	}
	return out
}

func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
