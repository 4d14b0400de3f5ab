package mockapi

import (
	"context"
	"errors"
	"sort"

	"taskboard/domain"
)

// ErrTaskNotFound is returned by storage backends for unknown tasks.
var ErrTaskNotFound = errors.New("task not found")

// Storage persists tasks per user.
type Storage interface {
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	// PutTask creates or replaces a task.
	PutTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	Ping(ctx context.Context) error
}

// listQuery holds the validated query parameters of a list request.
type listQuery struct {
	completed *bool
	limit     int
	offset    int
}

// apply filters, orders newest first and pages tasks.
func (q listQuery) apply(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if q.completed != nil && t.Completed != *q.completed {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	if q.offset >= len(out) {
		return []domain.Task{}
	}
	out = out[q.offset:]
	if q.limit > 0 && q.limit < len(out) {
		out = out[:q.limit]
	}
	return out
}
