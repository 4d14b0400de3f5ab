package ui

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Kind is the severity of a toast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Action is an optional follow-up offered with a toast.
type Action struct {
	Label string
	Run   func(ctx context.Context) error
}

// Toast is a single notification.
type Toast struct {
	ID      string
	Kind    Kind
	Message string
	Action  *Action
}

// Notifier queues toasts until the renderer drains them.
type Notifier struct {
	mu     sync.Mutex
	toasts []Toast
}

// Show queues a toast and returns its id.
func (n *Notifier) Show(kind Kind, message string, action *Action) string {
	t := Toast{ID: "toast-" + uuid.NewString(), Kind: kind, Message: message, Action: action}
	n.mu.Lock()
	n.toasts = append(n.toasts, t)
	n.mu.Unlock()
	return t.ID
}

func (n *Notifier) Success(message string, action *Action) string {
	return n.Show(KindSuccess, message, action)
}

func (n *Notifier) Error(message string) string   { return n.Show(KindError, message, nil) }
func (n *Notifier) Warning(message string) string { return n.Show(KindWarning, message, nil) }
func (n *Notifier) Info(message string) string    { return n.Show(KindInfo, message, nil) }

// Dismiss removes a toast. Unknown ids are ignored.
func (n *Notifier) Dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.toasts[:0]
	for _, t := range n.toasts {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	n.toasts = kept
}

// List returns the queued toasts without removing them.
func (n *Notifier) List() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Toast(nil), n.toasts...)
}

// Drain returns and clears the queued toasts.
func (n *Notifier) Drain() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.toasts
	n.toasts = nil
	return out
}
