package ui

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/client"
	"taskboard/domain"
	"taskboard/store"
)

const (
	OfflineMessage    = "You're offline. Some features may not work."
	UnexpectedMessage = "Something went wrong. Please try again."
)

// App wires the store to user-facing handlers. Handlers never panic and
// report every outcome as a toast.
type App struct {
	Store  *store.Store
	Toasts *Notifier
	Undo   *UndoBuffer

	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	filter  Filter
	offline bool
}

// AppOption configures an App.
type AppOption func(*App)

// WithClock overrides the clock used for due-date checks and undo windows.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) { a.now = now }
}

// WithUndoWindow overrides how long a deleted task can be restored.
func WithUndoWindow(d time.Duration) AppOption {
	return func(a *App) { a.Undo = NewUndoBuffer(d, a.clock) }
}

// NewApp creates an App over s.
func NewApp(s *store.Store, logger *log.Logger, opts ...AppOption) *App {
	if logger == nil {
		logger = log.StandardLogger()
	}
	a := &App{Store: s, Toasts: &Notifier{}, logger: logger, now: time.Now, filter: FilterAll}
	a.Undo = NewUndoBuffer(DefaultUndoWindow, a.clock)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) clock() time.Time { return a.now() }

// Filter returns the active filter.
func (a *App) Filter() Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// SetFilter changes the active filter.
func (a *App) SetFilter(f Filter) {
	a.mu.Lock()
	a.filter = f
	a.mu.Unlock()
}

// Offline reports whether the last request failed to reach the API.
func (a *App) Offline() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offline
}

// Visible returns the tasks matching the active filter.
func (a *App) Visible() []domain.Task {
	return a.Filter().Apply(a.Store.Snapshot().Tasks)
}

// Stats summarises every task regardless of filter.
func (a *App) Stats() domain.Stats {
	return domain.Summarize(a.Store.Snapshot().Tasks)
}

// Refresh reloads the task list.
func (a *App) Refresh(ctx context.Context) error {
	return a.handle("refresh", "Failed to load tasks", func() error {
		return a.Store.FetchAll(ctx)
	})
}

// AddTask creates a task from form input. dueDate is YYYY-MM-DD or empty.
func (a *App) AddTask(ctx context.Context, description, dueDate string) error {
	return a.handle("create", "Failed to create task", func() error {
		due, err := domain.ParseDueDate(dueDate)
		if err != nil {
			return err
		}
		if err := domain.ValidateDueDate(due, a.now()); err != nil {
			return err
		}
		if _, err := a.Store.Create(ctx, domain.TaskCreateRequest{Description: description, DueDate: due}); err != nil {
			return err
		}
		a.Toasts.Success("Task created successfully", nil)
		return nil
	})
}

// SaveEdit saves an open edit session.
func (a *App) SaveEdit(ctx context.Context, e *EditSession) error {
	return a.handle("update", "Failed to update task", func() error {
		if _, err := e.Save(ctx, a.Store); err != nil {
			return err
		}
		a.Toasts.Success("Task updated successfully", nil)
		return nil
	})
}

// ToggleTask flips a task between active and completed.
func (a *App) ToggleTask(ctx context.Context, id string) error {
	return a.handle("toggle", "Failed to update task", func() error {
		task, err := a.Store.ToggleComplete(ctx, id)
		if err != nil {
			return err
		}
		if task.Completed {
			a.Toasts.Success("Task completed!", nil)
		} else {
			a.Toasts.Success("Task marked as incomplete", nil)
		}
		return nil
	})
}

// DeleteTask deletes a task and offers to undo it for the undo window.
func (a *App) DeleteTask(ctx context.Context, id string) error {
	return a.handle("delete", "Failed to delete task", func() error {
		task, known := a.Store.Task(id)
		if err := a.Store.Delete(ctx, id); err != nil {
			return err
		}
		if !known {
			a.Toasts.Success("Task deleted", nil)
			return nil
		}
		a.Undo.Hold(task)
		a.Toasts.Success("Task deleted", &Action{Label: "Undo", Run: a.UndoDelete})
		return nil
	})
}

// UndoDelete restores the last deleted task as a new task. It does nothing
// once the undo window has passed.
func (a *App) UndoDelete(ctx context.Context) error {
	task, ok := a.Undo.Take()
	if !ok {
		a.Toasts.Info("Nothing to undo")
		return nil
	}
	return a.handle("restore", "Failed to restore task", func() error {
		_, err := a.Store.Create(ctx, domain.TaskCreateRequest{Description: task.Description, DueDate: task.DueDate})
		if err != nil {
			return &messageError{msg: "Failed to restore task", err: err}
		}
		a.Toasts.Success("Task restored", nil)
		return nil
	})
}

var errPanicked = errors.New("handler panicked")

// messageError replaces the toast text of err while keeping it inspectable.
type messageError struct {
	msg string
	err error
}

func (e *messageError) Error() string { return e.msg }
func (e *messageError) Unwrap() error { return e.err }

// handle runs fn, tracks connectivity, and converts any error or panic into
// an error toast. The error is returned so callers can re-prompt.
func (a *App) handle(name, fallback string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(log.Fields{"handler": name, "panic": r}).Error("handler panicked")
			a.Toasts.Error(UnexpectedMessage)
			err = errPanicked
		}
	}()

	err = fn()
	a.trackConnectivity(err)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrStale) || client.IsCanceled(err):
		a.logger.WithField("handler", name).WithError(err).Debug("discarded stale result")
		return err
	}

	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	entry := a.logger.WithField("handler", name).WithError(err)
	if domain.IsValidationError(err) {
		entry.Debug("validation failed")
	} else {
		entry.Warn("task operation failed")
	}
	a.Toasts.Error(msg)
	return err
}

// trackConnectivity flips the offline banner on network errors and back off
// on anything that carries a server response.
func (a *App) trackConnectivity(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case client.IsNetworkError(err):
		if !a.offline {
			a.offline = true
			a.logger.Warn("task API unreachable")
		}
	case err == nil, client.StatusCode(err) != 0:
		a.offline = false
	}
}
