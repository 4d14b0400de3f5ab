package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"taskboard/domain"
)

var errQuit = errors.New("quit")

// Menu drives an App from line-based input.
type Menu struct {
	app *App
	in  *bufio.Scanner
	out io.Writer
}

// NewMenu creates a menu reading commands from in and writing frames to out.
func NewMenu(app *App, in io.Reader, out io.Writer) *Menu {
	return &Menu{app: app, in: bufio.NewScanner(in), out: out}
}

const menuText = `
What would you like to do?

  1. Add a new task
  2. Refresh tasks
  3. Edit a task
  4. Delete a task
  5. Toggle complete
  6. Change filter
  7. Undo last delete
  8. Exit
`

// Run loads the tasks and processes commands until the user exits, the
// input ends or ctx is done.
func (m *Menu) Run(ctx context.Context) error {
	_ = m.app.Refresh(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := Render(m.out, m.app.View()); err != nil {
			return err
		}
		fmt.Fprint(m.out, menuText)
		choice, ok := m.prompt("Enter your choice (1-8): ")
		if !ok {
			return nil
		}
		if err := m.dispatch(ctx, choice); err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
				fmt.Fprintln(m.out, "\nGoodbye!")
				return nil
			}
			return err
		}
	}
}

func (m *Menu) dispatch(ctx context.Context, choice string) error {
	switch strings.ToLower(choice) {
	case "1", "add", "a":
		return m.add(ctx)
	case "2", "refresh", "r":
		_ = m.app.Refresh(ctx)
	case "3", "edit", "e":
		return m.edit(ctx)
	case "4", "delete", "rm", "d":
		return m.remove(ctx)
	case "5", "toggle", "done", "t":
		return m.toggle(ctx)
	case "6", "filter", "f":
		return m.filter()
	case "7", "undo", "u":
		_ = m.app.UndoDelete(ctx)
	case "8", "exit", "quit", "q":
		return errQuit
	default:
		m.app.Toasts.Error("Invalid choice. Please enter a number between 1 and 8.")
	}
	return nil
}

func (m *Menu) add(ctx context.Context) error {
	desc, ok := m.prompt("Description (max 200 characters): ")
	if !ok {
		return io.EOF
	}
	due, ok := m.prompt("Due date (YYYY-MM-DD, optional): ")
	if !ok {
		return io.EOF
	}
	_ = m.app.AddTask(ctx, desc, due)
	return nil
}

func (m *Menu) edit(ctx context.Context) error {
	task, ok, err := m.pickTask("Task to edit (number or id): ")
	if err != nil || !ok {
		return err
	}
	session := OpenEdit(task)
	fmt.Fprintf(m.out, "Current description: %s\n", task.Description)
	desc, more := m.prompt("New description (Enter keeps it): ")
	if !more {
		return io.EOF
	}
	if desc != "" {
		session.Description = desc
	}
	current := session.DueDate
	if current == "" {
		current = "none"
	}
	due, more := m.prompt(fmt.Sprintf("Due date [%s] (YYYY-MM-DD, '-' clears, Enter keeps): ", current))
	if !more {
		return io.EOF
	}
	switch due {
	case "":
	case "-":
		session.ClearDueDate()
	default:
		session.DueDate = due
	}
	_ = m.app.SaveEdit(ctx, session)
	return nil
}

func (m *Menu) remove(ctx context.Context) error {
	task, ok, err := m.pickTask("Task to delete (number or id): ")
	if err != nil || !ok {
		return err
	}
	fmt.Fprintf(m.out, "Delete %q? This action cannot be undone after %s.\n", task.Description, m.app.Undo.window)
	answer, more := m.prompt("Are you sure? (yes/no): ")
	if !more {
		return io.EOF
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		_ = m.app.DeleteTask(ctx, task.ID)
	default:
		m.app.Toasts.Info("Delete cancelled.")
	}
	return nil
}

func (m *Menu) toggle(ctx context.Context) error {
	task, ok, err := m.pickTask("Task to toggle (number or id): ")
	if err != nil || !ok {
		return err
	}
	_ = m.app.ToggleTask(ctx, task.ID)
	return nil
}

func (m *Menu) filter() error {
	answer, ok := m.prompt("Show which tasks? (all/active/completed): ")
	if !ok {
		return io.EOF
	}
	f, err := ParseFilter(answer)
	if err != nil {
		m.app.Toasts.Error(err.Error())
		return nil
	}
	m.app.SetFilter(f)
	return nil
}

// pickTask prompts for a task reference. ok is false when the reference did
// not resolve; the reason is queued as a toast.
func (m *Menu) pickTask(label string) (domain.Task, bool, error) {
	ref, more := m.prompt(label)
	if !more {
		return domain.Task{}, false, io.EOF
	}
	task, err := Resolve(m.app.Visible(), m.app.Store.Snapshot().Tasks, ref)
	if err != nil {
		m.app.Toasts.Error(err.Error())
		return domain.Task{}, false, nil
	}
	return task, true, nil
}

func (m *Menu) prompt(label string) (string, bool) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

// Resolve finds a task by its 1-based position in visible or by a unique id
// prefix among all.
func Resolve(visible, all []domain.Task, ref string) (domain.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Task{}, errors.New("Please enter a task number or id.")
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(visible) {
		return visible[n-1], nil
	}
	var match []domain.Task
	for _, t := range all {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			match = append(match, t)
		}
	}
	switch len(match) {
	case 0:
		return domain.Task{}, fmt.Errorf("No task matches %q. Please check the number or id and try again.", ref)
	case 1:
		return match[0], nil
	}
	return domain.Task{}, fmt.Errorf("%q matches %d tasks. Please type more of the id.", ref, len(match))
}
