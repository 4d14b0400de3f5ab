// Package store keeps the task list for the signed-in user in sync with the
// task API.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard/client"
	"taskboard/domain"
)

var (
	// ErrNotFound is returned when a task is not in the local list.
	ErrNotFound = errors.New("task not found")
	// ErrStale is returned when a result arrives after its caller gave up or
	// after the session changed. The result is discarded.
	ErrStale = errors.New("result discarded: operation is stale")
	// ErrNoUser is returned when no session user is set.
	ErrNoUser = errors.New("no user session")
	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("store closed")
)

// API is the subset of the task client the store depends on.
type API interface {
	ListTasks(ctx context.Context, sess client.Session, opts domain.ListOptions) ([]domain.Task, error)
	CreateTask(ctx context.Context, sess client.Session, req domain.TaskCreateRequest) (domain.Task, error)
	UpdateTask(ctx context.Context, sess client.Session, id string, req domain.TaskUpdateRequest) (domain.Task, error)
	CompleteTask(ctx context.Context, sess client.Session, id string, completed bool) (domain.Task, error)
	DeleteTask(ctx context.Context, sess client.Session, id string) error
}

// State is a point-in-time copy of the store.
type State struct {
	Tasks   []domain.Task
	Loading bool
	// Error is the message of the last failed operation, empty after a
	// successful fetch.
	Error string
}

// Store is safe for concurrent use. Network calls run outside the lock and
// local state only changes once the API has confirmed an operation.
type Store struct {
	api    API
	logger *log.Logger

	mu      sync.Mutex
	session client.Session
	tasks   []domain.Task
	loading bool
	errMsg  string

	// gen changes whenever the scope does; results tagged with an older
	// generation are dropped.
	gen         uint64
	scope       context.Context
	cancelScope context.CancelFunc
	closed      bool
}

// New creates an empty store without a session.
func New(api API, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	scope, cancel := context.WithCancel(context.Background())
	return &Store{api: api, logger: logger, scope: scope, cancelScope: cancel}
}

// op is a single in-flight operation bound to the scope it started in.
type op struct {
	ctx     context.Context
	gen     uint64
	session client.Session
	release func()
}

func (s *Store) begin(ctx context.Context) (*op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.session.UserID == "" {
		return nil, ErrNoUser
	}
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.scope, cancel)
	return &op{
		ctx:     opCtx,
		gen:     s.gen,
		session: s.session,
		release: func() {
			stop()
			cancel()
		},
	}, nil
}

// finish applies fn under the lock if o is still current. A failed call is
// recorded as the store error and returned unchanged.
func (s *Store) finish(o *op, callErr error, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.gen != s.gen {
		return fmt.Errorf("%w: session changed", ErrStale)
	}
	if ctxErr := o.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrStale, ctxErr)
	}
	if callErr != nil {
		s.errMsg = callErr.Error()
		return callErr
	}
	if fn != nil {
		fn()
	}
	return nil
}

// SetSession switches the store to sess. A different user discards all
// state, cancels the old user's in-flight operations and refetches. The same
// user only swaps credentials.
func (s *Store) SetSession(ctx context.Context, sess client.Session) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if sess.UserID == s.session.UserID {
		s.session = sess
		s.mu.Unlock()
		return nil
	}
	s.cancelScope()
	s.scope, s.cancelScope = context.WithCancel(context.Background())
	s.gen++
	s.session = sess
	s.tasks = nil
	s.loading = false
	s.errMsg = ""
	s.mu.Unlock()

	s.logger.WithField("user_id", sess.UserID).Debug("task store session changed")
	if sess.UserID == "" {
		return nil
	}
	return s.FetchAll(ctx)
}

// FetchAll replaces the local list with the server's.
func (s *Store) FetchAll(ctx context.Context) error {
	o, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer o.release()

	s.mu.Lock()
	if o.gen == s.gen {
		s.loading = true
		s.errMsg = ""
	}
	s.mu.Unlock()

	tasks, callErr := s.api.ListTasks(o.ctx, o.session, domain.ListOptions{})

	s.mu.Lock()
	if o.gen == s.gen {
		s.loading = false
	}
	s.mu.Unlock()

	return s.finish(o, callErr, func() {
		s.tasks = tasks
	})
}

// Create validates req, creates the task and prepends it to the list.
func (s *Store) Create(ctx context.Context, req domain.TaskCreateRequest) (domain.Task, error) {
	desc, err := domain.ValidateDescription(req.Description)
	if err != nil {
		s.recordError(err)
		return domain.Task{}, err
	}
	req.Description = desc

	o, err := s.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer o.release()

	task, callErr := s.api.CreateTask(o.ctx, o.session, req)
	if err := s.finish(o, callErr, func() {
		s.tasks = append([]domain.Task{task}, s.tasks...)
	}); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Update sends the changes in req and replaces the local copy with the result.
func (s *Store) Update(ctx context.Context, id string, req domain.TaskUpdateRequest) (domain.Task, error) {
	if req.Description != nil {
		desc, err := domain.ValidateDescription(*req.Description)
		if err != nil {
			s.recordError(err)
			return domain.Task{}, err
		}
		req.Description = &desc
	}

	o, err := s.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer o.release()

	task, callErr := s.api.UpdateTask(o.ctx, o.session, id, req)
	if err := s.finish(o, callErr, func() { s.replace(task) }); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// ToggleComplete flips the completion flag of a task in the local list.
func (s *Store) ToggleComplete(ctx context.Context, id string) (domain.Task, error) {
	current, ok := s.Task(id)
	if !ok {
		s.recordError(ErrNotFound)
		return domain.Task{}, ErrNotFound
	}

	o, err := s.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer o.release()

	task, callErr := s.api.CompleteTask(o.ctx, o.session, id, !current.Completed)
	if err := s.finish(o, callErr, func() { s.replace(task) }); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Delete removes a task on the server, then locally.
func (s *Store) Delete(ctx context.Context, id string) error {
	o, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer o.release()

	callErr := s.api.DeleteTask(o.ctx, o.session, id)
	return s.finish(o, callErr, func() {
		kept := s.tasks[:0:0]
		for _, t := range s.tasks {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		s.tasks = kept
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Tasks:   append([]domain.Task(nil), s.tasks...),
		Loading: s.loading,
		Error:   s.errMsg,
	}
}

// Task looks up a task in the local list.
func (s *Store) Task(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// UserID returns the current session user.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.UserID
}

// Session returns the current session.
func (s *Store) Session() client.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Close cancels every in-flight operation. Later calls fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.cancelScope()
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
}

// replace swaps the task with the same id. Must hold s.mu.
func (s *Store) replace(task domain.Task) {
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = task
			return
		}
	}
}
