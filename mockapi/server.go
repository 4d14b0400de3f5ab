// Package mockapi is a development implementation of the task REST API with
// pluggable storage, optional JWT auth and idempotent creates.
package mockapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	headerIdempotencyKey = "Idempotency-Key"
)

// Server serves the task API over echo.
type Server struct {
	echo    *echo.Echo
	storage Storage
	auth    Authenticator
	deduper Deduper
	clock   *Clock
	logger  *log.Logger
	metrics *serverMetrics
	newID   func() string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAuth requires every task route to carry a token for the path's user.
func WithAuth(a Authenticator) ServerOption {
	return func(s *Server) { s.auth = a }
}

// WithDeduper replaces the in-memory Idempotency-Key store.
func WithDeduper(d Deduper) ServerOption {
	return func(s *Server) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(c *Clock) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithServerLogger sets the request and error logger.
func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator overrides how task ids are minted.
func WithIDGenerator(fn func() string) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewServer builds the API over storage. Metrics are registered with reg,
// or a private registry when reg is nil.
func NewServer(storage Storage, reg *prometheus.Registry, opts ...ServerOption) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		storage: storage,
		deduper: NewMemoryDeduper(24 * time.Hour),
		clock:   NewClock(nil),
		logger:  log.StandardLogger(),
		metrics: newServerMetrics(reg),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = errorHandler(s.logger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.WithFields(log.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": float64(v.Latency) / float64(time.Millisecond),
			}).Debug("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, headerIdempotencyKey},
	}))
	registerMetrics(e, reg)

	e.GET("/healthz", s.healthz)
	g := e.Group("/api/:user/tasks", s.requireUser)
	g.GET("", s.listTasks)
	g.POST("", s.createTask)
	g.GET("/:id", s.getTask)
	g.PUT("/:id", s.updateTask)
	g.PATCH("/:id/complete", s.completeTask)
	g.DELETE("/:id", s.deleteTask)

	s.echo = e
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthz(c echo.Context) error {
	if err := s.storage.Ping(c.Request().Context()); err != nil {
		s.logger.WithError(err).Warn("storage ping failed")
		return detail(c, http.StatusServiceUnavailable, "storage unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.auth == nil {
			return next(c)
		}
		sub, err := s.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			s.metrics.authFails.WithLabelValues("401").Inc()
			c.Response().Header().Set("WWW-Authenticate", "Bearer")
			if errors.Is(err, errMissingAuthorization) {
				return detail(c, http.StatusUnauthorized, "Missing authentication token")
			}
			return detail(c, http.StatusUnauthorized, "Invalid or expired token: "+err.Error())
		}
		if sub != c.Param("user") {
			s.metrics.authFails.WithLabelValues("403").Inc()
			return detail(c, http.StatusForbidden, "Access denied: User ID mismatch")
		}
		return next(c)
	}
}

func (s *Server) listTasks(c echo.Context) error {
	q, errs := parseListQuery(c)
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}
	tasks, err := s.storage.ListTasks(c.Request().Context(), c.Param("user"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, q.apply(tasks))
}

func parseListQuery(c echo.Context) (listQuery, []fieldError) {
	q := listQuery{limit: defaultListLimit}
	var errs []fieldError
	if raw := c.QueryParam("completed"); raw != "" {
		v, ok := parseQueryBool(raw)
		if !ok {
			errs = append(errs, fieldError{Type: "bool_parsing", Loc: []any{"query", "completed"}, Msg: "Input should be a valid boolean, unable to interpret input", Input: raw})
		} else {
			q.completed = &v
		}
	}
	bounds := []struct {
		name     string
		dst      *int
		min, max int
	}{
		{"limit", &q.limit, 1, maxListLimit},
		{"offset", &q.offset, 0, -1},
	}
	for _, b := range bounds {
		raw := c.QueryParam(b.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		switch {
		case err != nil:
			errs = append(errs, fieldError{Type: "int_parsing", Loc: []any{"query", b.name}, Msg: "Input should be a valid integer, unable to parse string as an integer", Input: raw})
		case n < b.min:
			errs = append(errs, fieldError{Type: "greater_than_equal", Loc: []any{"query", b.name}, Msg: "Input should be greater than or equal to " + strconv.Itoa(b.min), Input: raw})
		case b.max >= 0 && n > b.max:
			errs = append(errs, fieldError{Type: "less_than_equal", Loc: []any{"query", b.name}, Msg: "Input should be less than or equal to " + strconv.Itoa(b.max), Input: raw})
		default:
			*b.dst = n
		}
	}
	return q, errs
}

func parseQueryBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on", "t", "y":
		return true, true
	case "false", "0", "no", "off", "f", "n":
		return false, true
	}
	return false, false
}

func (s *Server) getTask(c echo.Context) error {
	task, err := s.storage.GetTask(c.Request().Context(), c.Param("user"), c.Param("id"))
	if err != nil {
		return s.storageError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) createTask(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user")
	body, err := readBody(c)
	if err != nil {
		return invalidJSON(c)
	}

	var errs []fieldError
	desc, fe := descriptionField(body, true)
	if fe != nil {
		errs = append(errs, *fe)
	}
	due, fe := dueDateField(body)
	if fe != nil {
		errs = append(errs, *fe)
	}
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}

	now := domain.NewTimestamp(s.clock.Next())
	task := domain.Task{
		ID:          s.newID(),
		UserID:      userID,
		Description: *desc,
		DueDate:     due.Value,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
	if key != "" {
		existing, claimed, err := s.deduper.Claim(ctx, userID, key, task.ID)
		if err != nil {
			return err
		}
		if !claimed {
			prev, err := s.storage.GetTask(ctx, userID, existing)
			if errors.Is(err, ErrTaskNotFound) {
				return detail(c, http.StatusConflict, "A request with this Idempotency-Key is still in progress")
			}
			if err != nil {
				return err
			}
			s.metrics.replays.Inc()
			s.logger.WithFields(log.Fields{"user_id": userID, "task_id": prev.ID}).Debug("replayed create")
			return c.JSON(http.StatusCreated, prev)
		}
	}

	if err := s.storage.PutTask(ctx, task); err != nil {
		if key != "" {
			if rerr := s.deduper.Release(ctx, userID, key); rerr != nil {
				s.logger.WithError(rerr).Warn("release idempotency key")
			}
		}
		return err
	}
	s.metrics.mutations.WithLabelValues("create").Inc()
	return c.JSON(http.StatusCreated, task)
}

func (s *Server) updateTask(c echo.Context) error {
	ctx := c.Request().Context()
	body, err := readBody(c)
	if err != nil {
		return invalidJSON(c)
	}
	var errs []fieldError
	desc, fe := descriptionField(body, false)
	if fe != nil {
		errs = append(errs, *fe)
	}
	due, fe := dueDateField(body)
	if fe != nil {
		errs = append(errs, *fe)
	}
	if len(errs) > 0 {
		return unprocessable(c, errs)
	}

	task, err := s.storage.GetTask(ctx, c.Param("user"), c.Param("id"))
	if err != nil {
		return s.storageError(c, err)
	}
	if desc != nil {
		task.Description = *desc
	}
	if due.Set {
		task.DueDate = due.Value
	}
	task.UpdatedAt = domain.NewTimestamp(s.clock.Next())
	if err := s.storage.PutTask(ctx, task); err != nil {
		return err
	}
	s.metrics.mutations.WithLabelValues("update").Inc()
	return c.JSON(http.StatusOK, task)
}

func (s *Server) completeTask(c echo.Context) error {
	ctx := c.Request().Context()
	body, err := readBody(c)
	switch {
	case errors.Is(err, errEmptyBody):
		body = rawBody{}
	case err != nil:
		return invalidJSON(c)
	}

	task, err := s.storage.GetTask(ctx, c.Param("user"), c.Param("id"))
	if err != nil {
		return s.storageError(c, err)
	}
	completed := !task.Completed
	if body.has("completed") && !body.isNull("completed") {
		if err := body.decode("completed", &completed); err != nil {
			return unprocessable(c, []fieldError{{Type: "bool_type", Loc: []any{"body", "completed"}, Msg: "Input should be a valid boolean"}})
		}
	}
	task.Completed = completed
	task.UpdatedAt = domain.NewTimestamp(s.clock.Next())
	if err := s.storage.PutTask(ctx, task); err != nil {
		return err
	}
	s.metrics.mutations.WithLabelValues("complete").Inc()
	return c.JSON(http.StatusOK, task)
}

func (s *Server) deleteTask(c echo.Context) error {
	if err := s.storage.DeleteTask(c.Request().Context(), c.Param("user"), c.Param("id")); err != nil {
		return s.storageError(c, err)
	}
	s.metrics.mutations.WithLabelValues("delete").Inc()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) storageError(c echo.Context, err error) error {
	if errors.Is(err, ErrTaskNotFound) {
		return detail(c, http.StatusNotFound, "Task not found")
	}
	return err
}

// descriptionField validates the description key. When required is false an
// absent or null key yields nil.
func descriptionField(body rawBody, required bool) (*string, *fieldError) {
	loc := []any{"body", "description"}
	if !body.has("description") || body.isNull("description") {
		if required {
			fe := missing(loc...)
			return nil, &fe
		}
		return nil, nil
	}
	var raw string
	if err := body.decode("description", &raw); err != nil {
		return nil, &fieldError{Type: "string_type", Loc: loc, Msg: "Input should be a valid string"}
	}
	desc, err := domain.ValidateDescription(raw)
	switch {
	case err == nil:
		return &desc, nil
	case raw == "":
		return nil, &fieldError{Type: "string_too_short", Loc: loc, Msg: "String should have at least 1 character", Input: raw}
	case errors.Is(err, domain.ErrDescriptionTooLong):
		return nil, &fieldError{Type: "string_too_long", Loc: loc, Msg: "String should have at most 200 characters", Input: raw}
	default:
		return nil, &fieldError{Type: "value_error", Loc: loc, Msg: "Value error, Description cannot be empty", Input: raw}
	}
}

// dueDateField reads the optional due_date key, keeping absent and null apart.
func dueDateField(body rawBody) (domain.OptionalTime, *fieldError) {
	switch {
	case !body.has("due_date"):
		return domain.OptionalTime{}, nil
	case body.isNull("due_date"):
		return domain.ClearTime(), nil
	}
	var ts domain.Timestamp
	if err := body.decode("due_date", &ts); err != nil {
		return domain.OptionalTime{}, &fieldError{Type: "datetime_parsing", Loc: []any{"body", "due_date"}, Msg: "Input should be a valid datetime", Input: string(body["due_date"])}
	}
	return domain.SetTime(ts), nil
}
