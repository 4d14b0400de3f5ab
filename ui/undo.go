package ui

import (
	"sync"
	"time"

	"taskboard/domain"
)

// DefaultUndoWindow is how long a deleted task can be restored.
const DefaultUndoWindow = 5 * time.Second

// UndoBuffer holds the most recently deleted task for a limited time.
type UndoBuffer struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	task    *domain.Task
	expires time.Time
}

// NewUndoBuffer creates a buffer with the given window. now defaults to time.Now.
func NewUndoBuffer(window time.Duration, now func() time.Time) *UndoBuffer {
	if window <= 0 {
		window = DefaultUndoWindow
	}
	if now == nil {
		now = time.Now
	}
	return &UndoBuffer{window: window, now: now}
}

// Hold replaces any held task with t.
func (u *UndoBuffer) Hold(t domain.Task) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.task = &t
	u.expires = u.now().Add(u.window)
}

// Take returns the held task and empties the buffer. It reports false once
// the window has passed.
func (u *UndoBuffer) Take() (domain.Task, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	t := u.task
	u.task = nil
	if t == nil || !u.now().Before(u.expires) {
		return domain.Task{}, false
	}
	return *t, true
}

// Pending reports whether a task can still be restored.
func (u *UndoBuffer) Pending() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.task != nil && u.now().Before(u.expires)
}
