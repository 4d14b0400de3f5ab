package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

func editFixture() domain.Task {
	due, _ := domain.ParseDueDate("2026-05-01")
	ts := domain.NewTimestamp(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return domain.Task{ID: "t1", Description: "Write report", DueDate: due, CreatedAt: ts, UpdatedAt: ts}
}

func TestOpenEditPrefillsFields(t *testing.T) {
	e := OpenEdit(editFixture())
	if e.Description != "Write report" || e.DueDate != "2026-05-01" {
		t.Fatalf("unexpected session %+v", e)
	}
}

func TestEditConflictCheckedBeforeValidation(t *testing.T) {
	task := editFixture()
	e := OpenEdit(task)
	e.Description = ""

	changed := task
	changed.UpdatedAt = domain.NewTimestamp(task.UpdatedAt.Add(time.Minute))
	if _, err := e.Request(changed); !errors.Is(err, domain.ErrEditConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := e.Request(task); !errors.Is(err, domain.ErrEmptyDescription) {
		t.Fatalf("expected description error, got %v", err)
	}
}

func TestEditClearingDueDateSendsNull(t *testing.T) {
	task := editFixture()
	e := OpenEdit(task)
	e.ClearDueDate()
	req, err := e.Request(task)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	data, err := sonic.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"due_date":null`) {
		t.Fatalf("expected explicit null due date, got %s", data)
	}
}

func TestEditKeepsAndTrimsValues(t *testing.T) {
	task := editFixture()
	e := OpenEdit(task)
	e.Description = "  Write the report  "
	req, err := e.Request(task)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if *req.Description != "Write the report" {
		t.Fatalf("expected trimmed description, got %q", *req.Description)
	}
	if req.DueDate.IsNull() || !req.DueDate.Value.Equal(*task.DueDate) {
		t.Fatalf("expected due date to be kept, got %+v", req.DueDate)
	}

	e.DueDate = "soon"
	if _, err := e.Request(task); !domain.IsValidationError(err) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
}
