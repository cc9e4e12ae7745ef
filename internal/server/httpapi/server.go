// Package httpapi exposes the board services as a JSON API over echo.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/service"
)

// Services groups the application services served over HTTP.
type Services struct {
	Auth        service.AuthService
	Projects    service.ProjectService
	Columns     service.ColumnService
	Tasks       service.TaskService
	Reorder     service.ReorderService
	Attachments service.AttachmentService
}

// Server wires services into echo handlers.
type Server struct {
	svc       Services
	signKey   []byte
	log       *zap.Logger
	now       func() time.Time
	maxUpload int64
	origins   []string
	limiter   echo.MiddlewareFunc
	e         *echo.Echo
}

// Option customises a Server.
type Option func(*Server)

// WithMaxUpload caps multipart upload bodies.
func WithMaxUpload(n int64) Option { return func(s *Server) { s.maxUpload = n } }

// WithCORS sets the allowed browser origins.
func WithCORS(origins []string) Option { return func(s *Server) { s.origins = origins } }

// WithRateLimit installs a per-client request limiter on /v1.
func WithRateLimit(c Counter, perMin int) Option {
	return func(s *Server) { s.limiter = RateLimit(c, perMin, s.log, s.now) }
}

// New builds the echo router.
func New(svc Services, signKey []byte, log *zap.Logger, opts ...Option) *Server {
	s := &Server{svc: svc, signKey: signKey, log: log, now: time.Now, maxUpload: 10 << 20}
	for _, o := range opts {
		o(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(RequestID(), Logging(log), Recover(log))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/v1")
	if s.limiter != nil {
		v1.Use(s.limiter)
	}
	v1.POST("/auth/register", s.register)
	v1.POST("/auth/login", s.login)

	api := v1.Group("", s.requireUser)
	api.GET("/me", s.me)

	api.GET("/projects", s.listProjects)
	api.POST("/projects", s.createProject)
	api.POST("/projects/reorder", s.reorderProjects)
	api.PATCH("/projects/:id", s.updateProject)
	api.DELETE("/projects/:id", s.deleteProject)
	api.GET("/projects/:id/columns", s.projectColumns)
	api.GET("/projects/:id/tasks", s.projectTasks)

	api.POST("/columns", s.createColumn)
	api.POST("/columns/reorder", s.reorderColumns)
	api.PATCH("/columns/:id", s.updateColumn)
	api.DELETE("/columns/:id", s.deleteColumn)

	api.POST("/tasks", s.createTask)
	api.POST("/tasks/reorder", s.reorderTasks)
	api.PATCH("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.GET("/tasks/:id/attachments", s.listAttachments)
	api.POST("/tasks/:id/attachments", s.uploadAttachment)

	api.GET("/attachments/:id", s.downloadAttachment)
	api.DELETE("/attachments/:id", s.deleteAttachment)

	s.e = e
	return s
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Disposition", echo.HeaderXRequestID},
	})
	return c.Handler(s.e)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps domain sentinels to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders every error as {"error": "..."}; internal details stay in the log.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusOf(err)
	msg := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("route", c.Path()), zap.Error(err))
		msg = "internal error"
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody{Error: msg})
}
