package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/service"
	"github.com/amirbrooks/taskbot/internal/store"
)

const (
	maxTextSize = 4 << 10 // 4KB, above Telegram's message limit
	maxLimit    = 500
)

type taskJSON struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	ProjectID   string     `json:"project_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags"`
	DueAt       *time.Time `json:"due_at"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type projectJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaskCount int       `json:"task_count"`
	CreatedAt time.Time `json:"created_at"`
}

type columnJSON struct {
	Status string     `json:"status"`
	Tasks  []taskJSON `json:"tasks"`
}

type createRequest struct {
	OwnerID string `json:"owner_id"`
	Text    string `json:"text"`
}

// updateRequest distinguishes an absent due_at from an explicit null, which
// clears the due time.
type updateRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	DueAt       json.RawMessage `json:"due_at"`
	Status      *string         `json:"status"`
}

func toTaskJSON(t domain.Task) taskJSON {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return taskJSON{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Tags:        tags,
		DueAt:       t.DueAt,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTasksJSON(tasks []domain.Task) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskJSON(t))
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListTasks(c *gin.Context) {
	filter := store.TaskFilter{
		OwnerID:   c.Query("owner_id"),
		ProjectID: c.Query("project_id"),
	}
	if raw := c.Query("status"); raw != "" {
		if raw == "open" {
			filter.Open = true
		} else {
			st, ok := domain.ParseStatus(raw)
			if !ok {
				s.fail(c, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
				return
			}
			filter.Status = st
		}
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			s.fail(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
			return
		}
		filter.Limit = n
	}

	tasks, err := s.tasks.Tasks(c.Request.Context(), filter)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   toTasksJSON(tasks),
		"count":   len(tasks),
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Text) > maxTextSize {
		s.fail(c, http.StatusBadRequest, "text exceeds maximum size of 4KB")
		return
	}

	created, err := s.tasks.Submit(c.Request.Context(), strings.TrimSpace(req.OwnerID), req.Text)
	if err != nil {
		s.failErr(c, err)
		return
	}
	resp := gin.H{
		"success": true,
		"task":    toTaskJSON(created.Task),
	}
	if created.Project != nil {
		resp["project"] = projectJSON{ID: created.Project.ID, Name: created.Project.Name, CreatedAt: created.Project.CreatedAt}
	}
	if created.Reminder != nil {
		resp["reminder_at"] = created.Reminder.ScheduledAt
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": toTaskJSON(task)})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.tasks.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": toTaskJSON(task)})
}

func (r updateRequest) patch() (store.TaskPatch, error) {
	patch := store.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
	}
	if r.Status != nil {
		st := domain.TaskStatus(strings.TrimSpace(*r.Status))
		patch.Status = &st
	}
	switch raw := bytes.TrimSpace(r.DueAt); {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		patch.ClearDue = true
	default:
		var due time.Time
		if err := json.Unmarshal(raw, &due); err != nil {
			return store.TaskPatch{}, errors.New("due_at must be an RFC 3339 timestamp or null")
		}
		patch.DueAt = &due
	}
	return patch, nil
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleBoard(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		s.fail(c, http.StatusBadRequest, "owner_id parameter required")
		return
	}
	columns, err := s.tasks.Board(c.Request.Context(), ownerID, c.Query("project_id"))
	if err != nil {
		s.failErr(c, err)
		return
	}
	out := make([]columnJSON, 0, len(columns))
	for _, col := range columns {
		out = append(out, columnJSON{Status: string(col.Status), Tasks: toTasksJSON(col.Tasks)})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "columns": out})
}

func (s *Server) handleProjects(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		s.fail(c, http.StatusBadRequest, "owner_id parameter required")
		return
	}
	projects, err := s.tasks.Projects(c.Request.Context(), ownerID)
	if err != nil {
		s.failErr(c, err)
		return
	}
	out := make([]projectJSON, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectJSON{ID: p.ID, Name: p.Name, TaskCount: p.TaskCount, CreatedAt: p.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "projects": out, "count": len(out)})
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// failErr maps service and store errors to HTTP statuses.
func (s *Server) failErr(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", c.GetString("request_id"), "err", err)
		s.fail(c, status, "internal error")
		return
	}
	s.fail(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
