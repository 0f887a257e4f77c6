package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/service"
	"github.com/amirbrooks/taskbot/internal/store"
)

const requestIDHeader = "X-Request-ID"

// Service is the task surface the dashboard API needs. *service.TaskService
// implements it.
type Service interface {
	Submit(ctx context.Context, ownerID, text string) (service.Created, error)
	Tasks(ctx context.Context, f store.TaskFilter) ([]domain.Task, error)
	Board(ctx context.Context, ownerID, projectID string) ([]service.BoardColumn, error)
	Projects(ctx context.Context, ownerID string) ([]domain.ProjectSummary, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	Update(ctx context.Context, id string, patch store.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// Server is the dashboard HTTP API.
type Server struct {
	tasks  Service
	logger *slog.Logger
	router *gin.Engine
	http   *http.Server
}

// NewServer creates a server listening on addr once Start is called.
func NewServer(tasks Service, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()

	s := &Server{
		tasks:  tasks,
		logger: logger.With("component", "web"),
		router: router,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Use(gin.Recovery(), s.requestID(), s.accessLog())

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.GET("/board", s.handleBoard)
		api.GET("/projects", s.handleProjects)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
