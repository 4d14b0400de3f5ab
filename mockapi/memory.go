package mockapi

import (
	"context"
	"sync"

	"taskboard/domain"
)

// MemoryStorage keeps tasks in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[string]map[string]domain.Task
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tasks: map[string]map[string]domain.Task{}}
}

func (m *MemoryStorage) ListTasks(_ context.Context, userID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Task, 0, len(m.tasks[userID]))
	for _, t := range m.tasks[userID] {
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStorage) GetTask(_ context.Context, userID, taskID string) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[userID][taskID]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}
	return t, nil
}

func (m *MemoryStorage) PutTask(_ context.Context, task domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	userTasks, ok := m.tasks[task.UserID]
	if !ok {
		userTasks = map[string]domain.Task{}
		m.tasks[task.UserID] = userTasks
	}
	userTasks[task.ID] = task
	return nil
}

func (m *MemoryStorage) DeleteTask(_ context.Context, userID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[userID][taskID]; !ok {
		return ErrTaskNotFound
	}
	delete(m.tasks[userID], taskID)
	return nil
}

func (m *MemoryStorage) Ping(context.Context) error { return nil }
