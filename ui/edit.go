package ui

import (
	"context"

	"taskboard/domain"
	"taskboard/store"
)

// EditSession is an open edit of one task. It remembers the task's
// updated_at from when it was opened so a save can detect that someone else
// changed the task in the meantime.
type EditSession struct {
	TaskID      string
	Description string
	// DueDate is the date input as YYYY-MM-DD. Empty clears the due date.
	DueDate string

	openedAt domain.Timestamp
}

// OpenEdit starts editing t with its current values.
func OpenEdit(t domain.Task) *EditSession {
	e := &EditSession{TaskID: t.ID, Description: t.Description, openedAt: t.UpdatedAt}
	if t.DueDate != nil {
		e.DueDate = t.DueDate.UTC().Format("2006-01-02")
	}
	return e
}

// ClearDueDate removes the due date on save.
func (e *EditSession) ClearDueDate() { e.DueDate = "" }

// Request checks the session against current and builds the update. The
// conflict check runs before any field validation.
func (e *EditSession) Request(current domain.Task) (domain.TaskUpdateRequest, error) {
	if !current.UpdatedAt.Equal(e.openedAt) {
		return domain.TaskUpdateRequest{}, domain.ErrEditConflict
	}
	desc, err := domain.ValidateDescription(e.Description)
	if err != nil {
		return domain.TaskUpdateRequest{}, err
	}
	req := domain.TaskUpdateRequest{Description: &desc, DueDate: domain.ClearTime()}
	due, err := domain.ParseDueDate(e.DueDate)
	if err != nil {
		return domain.TaskUpdateRequest{}, err
	}
	if due != nil {
		req.DueDate = domain.SetTime(*due)
	}
	return req, nil
}

// Save validates the session against the store's copy of the task and sends
// the update.
func (e *EditSession) Save(ctx context.Context, s *store.Store) (domain.Task, error) {
	current, ok := s.Task(e.TaskID)
	if !ok {
		return domain.Task{}, store.ErrNotFound
	}
	req, err := e.Request(current)
	if err != nil {
		return domain.Task{}, err
	}
	return s.Update(ctx, e.TaskID, req)
}
