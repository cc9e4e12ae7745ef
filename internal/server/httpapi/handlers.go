package httpapi

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
}

type projectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type projectWithColumns struct {
	model.Project
	Columns []model.Column `json:"columns"`
}

type columnRequest struct {
	ProjectID int64  `json:"project_id"`
	Title     string `json:"title"`
	Color     string `json:"color,omitempty"`
}

type taskRequest struct {
	ColumnID    int64  `json:"column_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

type reorderProjectsRequest struct {
	ProjectIDs []int64 `json:"project_ids"`
}

type reorderColumnsRequest struct {
	Columns []model.OrderEntry `json:"columns"`
}

type reorderTasksRequest struct {
	Tasks []model.OrderEntry `json:"tasks"`
}

type changedResponse struct {
	Changed int64 `json:"changed"`
}

func bind(c echo.Context, v any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return fmt.Errorf("%w: malformed body", errs.ErrValidation)
	}
	return nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id", errs.ErrValidation)
	}
	return id, nil
}

// --- auth ---

func (s *Server) register(c echo.Context) error {
	var req credentials
	if err := bind(c, &req); err != nil {
		return err
	}
	id, err := s.svc.Auth.Register(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]int64{"user_id": id})
}

func (s *Server) login(c echo.Context) error {
	var req credentials
	if err := bind(c, &req); err != nil {
		return err
	}
	tok, u, err := s.svc.Auth.LoginWithAddr(c.Request().Context(), req.Username, req.Password, c.RealIP())
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "bad credentials")
		}
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt, UserID: u.ID})
}

func (s *Server) me(c echo.Context) error {
	u, err := s.svc.Auth.Me(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// --- projects ---

func (s *Server) listProjects(c echo.Context) error {
	ps, err := s.svc.Projects.List(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ps)
}

func (s *Server) createProject(c echo.Context) error {
	var req projectRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, cols, err := s.svc.Projects.Create(c.Request().Context(), currentUser(c), req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, projectWithColumns{Project: *p, Columns: cols})
}

func (s *Server) updateProject(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch model.ProjectPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	p, err := s.svc.Projects.Update(c.Request().Context(), currentUser(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProject(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Projects.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reorderProjects(c echo.Context) error {
	var req reorderProjectsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := s.svc.Reorder.ReorderProjects(c.Request().Context(), currentUser(c), req.ProjectIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, changedResponse{Changed: n})
}

func (s *Server) projectColumns(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cols, err := s.svc.Projects.Columns(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cols)
}

func (s *Server) projectTasks(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ts, err := s.svc.Projects.Tasks(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ts)
}

// --- columns ---

func (s *Server) createColumn(c echo.Context) error {
	var req columnRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	col, err := s.svc.Columns.Create(c.Request().Context(), currentUser(c), req.ProjectID, req.Title, req.Color)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, col)
}

func (s *Server) updateColumn(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch model.ColumnPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	col, err := s.svc.Columns.Update(c.Request().Context(), currentUser(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, col)
}

func (s *Server) deleteColumn(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Columns.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reorderColumns(c echo.Context) error {
	var req reorderColumnsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := s.svc.Reorder.ReorderColumns(c.Request().Context(), currentUser(c), req.Columns)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, changedResponse{Changed: n})
}

// --- tasks ---

func (s *Server) createTask(c echo.Context) error {
	var req taskRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := s.svc.Tasks.Create(c.Request().Context(), currentUser(c), model.Task{
		ColumnID: req.ColumnID, Title: req.Title, Description: req.Description, Priority: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch model.TaskPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	t, err := s.svc.Tasks.Update(c.Request().Context(), currentUser(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Tasks.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reorderTasks(c echo.Context) error {
	var req reorderTasksRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	n, err := s.svc.Reorder.ReorderTasks(c.Request().Context(), currentUser(c), req.Tasks)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, changedResponse{Changed: n})
}

// --- attachments ---

func (s *Server) listAttachments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	as, err := s.svc.Attachments.List(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, as)
}

func (s *Server) uploadAttachment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r := c.Request()
	if s.maxUpload > 0 {
		// multipart framing needs a little room on top of the file itself
		r.Body = http.MaxBytesReader(c.Response(), r.Body, s.maxUpload+64<<10)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: attachment too large", errs.ErrValidation)
		}
		return fmt.Errorf("%w: multipart field \"file\" required", errs.ErrValidation)
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := s.svc.Attachments.Upload(r.Context(), currentUser(c), id, fh.Filename, fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) downloadAttachment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, rc, err := s.svc.Attachments.Open(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(a.FileSize, 10))
	return c.Stream(http.StatusOK, a.FileType, rc)
}

func (s *Server) deleteAttachment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Attachments.Delete(c.Request().Context(), currentUser(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
