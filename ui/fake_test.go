package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/client"
	"taskboard/domain"
	"taskboard/store"
)

// memAPI is an in-memory task API.
type memAPI struct {
	mu      sync.Mutex
	tasks   []domain.Task
	calls   int
	failing error
	panics  bool
}

func (m *memAPI) enter() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.panics {
		panic("boom")
	}
	return m.failing
}

func (m *memAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *memAPI) setFailing(err error) {
	m.mu.Lock()
	m.failing = err
	m.mu.Unlock()
}

func (m *memAPI) ListTasks(_ context.Context, _ client.Session, _ domain.ListOptions) ([]domain.Task, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Task{}, m.tasks...), nil
}

func (m *memAPI) CreateTask(_ context.Context, sess client.Session, req domain.TaskCreateRequest) (domain.Task, error) {
	if err := m.enter(); err != nil {
		return domain.Task{}, err
	}
	now := domain.NewTimestamp(time.Now())
	t := domain.Task{ID: uuid.NewString(), UserID: sess.UserID, Description: req.Description, DueDate: req.DueDate, CreatedAt: now, UpdatedAt: now}
	m.mu.Lock()
	m.tasks = append([]domain.Task{t}, m.tasks...)
	m.mu.Unlock()
	return t, nil
}

func (m *memAPI) UpdateTask(_ context.Context, _ client.Session, id string, req domain.TaskUpdateRequest) (domain.Task, error) {
	if err := m.enter(); err != nil {
		return domain.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.ID != id {
			continue
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.DueDate.Set {
			t.DueDate = req.DueDate.Value
		}
		t.UpdatedAt = domain.NewTimestamp(t.UpdatedAt.Add(time.Second))
		m.tasks[i] = t
		return t, nil
	}
	return domain.Task{}, &client.RequestFailedError{Status: 404, Message: "Task not found"}
}

func (m *memAPI) CompleteTask(_ context.Context, _ client.Session, id string, completed bool) (domain.Task, error) {
	if err := m.enter(); err != nil {
		return domain.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.ID == id {
			t.Completed = completed
			m.tasks[i] = t
			return t, nil
		}
	}
	return domain.Task{}, &client.RequestFailedError{Status: 404, Message: "Task not found"}
}

func (m *memAPI) DeleteTask(_ context.Context, _ client.Session, id string) error {
	if err := m.enter(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.ID == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return &client.RequestFailedError{Status: 404, Message: "Task not found"}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestApp(t *testing.T) (*App, *memAPI, *fakeClock) {
	t.Helper()
	api := &memAPI{}
	logger, _ := test.NewNullLogger()
	s := store.New(api, logger)
	t.Cleanup(s.Close)
	if err := s.SetSession(context.Background(), client.Session{UserID: "user-1"}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewApp(s, logger, WithClock(clock.Now)), api, clock
}

func lastToast(t *testing.T, a *App) Toast {
	t.Helper()
	toasts := a.Toasts.List()
	if len(toasts) == 0 {
		t.Fatalf("expected a toast")
	}
	return toasts[len(toasts)-1]
}
