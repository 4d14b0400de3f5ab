// Package ui implements the terminal front end: filtering, notifications,
// edit and undo flows, rendering and the interactive menu.
package ui

import (
	"fmt"
	"strings"

	"taskboard/domain"
)

// Filter selects which tasks are shown.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// Filters lists every filter in display order.
var Filters = []Filter{FilterAll, FilterActive, FilterCompleted}

// ParseFilter accepts a filter name in any case. Empty input means all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterActive:
		return FilterActive, nil
	case FilterCompleted:
		return FilterCompleted, nil
	}
	return FilterAll, fmt.Errorf("unknown filter %q (want all, active or completed)", s)
}

// Apply returns the tasks matching f, keeping their order.
func (f Filter) Apply(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		switch f {
		case FilterActive:
			if t.Completed {
				continue
			}
		case FilterCompleted:
			if !t.Completed {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// EmptyMessage is shown when no task matches f.
func (f Filter) EmptyMessage() string {
	switch f {
	case FilterActive:
		return "No active tasks. All done! 🎉"
	case FilterCompleted:
		return "No completed tasks yet."
	default:
		return "No tasks yet. Create one to get started!"
	}
}

// Title is the capitalised filter name.
func (f Filter) Title() string {
	s := string(f)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
