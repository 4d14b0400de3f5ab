package ui

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"taskboard/domain"
	"taskboard/store"
)

const (
	ruleWidth      = 46
	maxDescDisplay = 50
)

var statusMarks = map[bool]string{true: "[✓]", false: "[ ]"}

// View is everything the renderer needs for one frame.
type View struct {
	State   store.State
	Filter  Filter
	Offline bool
	Toasts  []Toast
	Now     time.Time
}

// View captures the current frame and drains pending toasts.
func (a *App) View() View {
	return View{
		State:   a.Store.Snapshot(),
		Filter:  a.Filter(),
		Offline: a.Offline(),
		Toasts:  a.Toasts.Drain(),
		Now:     a.now(),
	}
}

// Render writes v as a boxed task list.
func Render(w io.Writer, v View) error {
	var b strings.Builder
	rule := strings.Repeat("=", ruleWidth)

	if v.Offline {
		fmt.Fprintf(&b, "! %s\n", OfflineMessage)
	}
	b.WriteString(rule + "\n")
	b.WriteString(strings.Repeat(" ", 17) + "My Tasks\n")
	b.WriteString(rule + "\n")

	stats := domain.Summarize(v.State.Tasks)
	filters := make([]string, 0, len(Filters))
	for _, f := range Filters {
		if f == v.Filter {
			filters = append(filters, "["+f.Title()+"]")
		} else {
			filters = append(filters, f.Title())
		}
	}
	fmt.Fprintf(&b, " %s\n\n", strings.Join(filters, "  "))

	visible := v.Filter.Apply(v.State.Tasks)
	switch {
	case v.State.Loading:
		b.WriteString("  Loading tasks...\n")
	case v.State.Error != "" && len(v.State.Tasks) == 0:
		fmt.Fprintf(&b, "  Error: %s\n", v.State.Error)
	case len(visible) == 0:
		fmt.Fprintf(&b, "  %s\n", v.Filter.EmptyMessage())
	default:
		b.WriteString("  # | Status | Description\n")
		b.WriteString("----|--------|" + strings.Repeat("-", ruleWidth-12) + "\n")
		for i, t := range visible {
			fmt.Fprintf(&b, "%3d | %-6s | %s\n", i+1, statusMarks[t.Completed], Truncate(t.Description, maxDescDisplay))
			if label := DueLabel(t, v.Now); label != "" {
				fmt.Fprintf(&b, "    |        |   %s\n", label)
			}
		}
		b.WriteString("\n")
		noun := "tasks"
		if len(visible) == 1 {
			noun = "task"
		}
		fmt.Fprintf(&b, "  %d %s", len(visible), noun)
		if v.Filter != FilterAll {
			fmt.Fprintf(&b, " (%d total)", stats.Total)
		}
		b.WriteString("\n")
	}

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Summary: %d total | %d active | %d completed\n", stats.Total, stats.Active, stats.Completed)
	b.WriteString(rule + "\n")

	for _, t := range v.Toasts {
		b.WriteString(FormatToast(t) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Truncate shortens s to n characters, ending with "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n || n < 3 {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// DueLabel describes a task's due date, flagging it when overdue.
func DueLabel(t domain.Task, now time.Time) string {
	if t.DueDate == nil {
		return ""
	}
	due := t.DueDate.UTC()
	layout := "Jan 2"
	if due.Year() != now.UTC().Year() {
		layout = "Jan 2, 2006"
	}
	label := "Due " + due.Format(layout)
	if !t.Completed && due.Before(now) {
		label = "⚠ " + label + " (overdue)"
	}
	return label
}

// FormatToast renders a toast as a single line.
func FormatToast(t Toast) string {
	icon := map[Kind]string{KindSuccess: "✓", KindError: "✗", KindWarning: "!", KindInfo: "i"}[t.Kind]
	line := fmt.Sprintf("%s %s", icon, t.Message)
	if t.Action != nil {
		line += fmt.Sprintf(" (type %q to %s)", strings.ToLower(t.Action.Label), t.Action.Label)
	}
	return line
}
