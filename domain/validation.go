package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxDescriptionLength is the longest description the API accepts, in characters.
const MaxDescriptionLength = 200

// ValidationError is raised locally, before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	ErrEmptyDescription   = &ValidationError{Field: "description", Message: "Task description cannot be empty"}
	ErrDescriptionTooLong = &ValidationError{Field: "description", Message: "Task description must be 200 characters or less"}
	ErrPastDueDate        = &ValidationError{Field: "due_date", Message: "Due date cannot be in the past"}
	ErrEditConflict       = &ValidationError{Field: "updated_at", Message: "This task was updated elsewhere. Please refresh and try again."}
)

// IsValidationError reports whether err is a local validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateDescription trims s and checks it against the description rules.
func ValidateDescription(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrEmptyDescription
	}
	if utf8.RuneCountInString(trimmed) > MaxDescriptionLength {
		return "", ErrDescriptionTooLong
	}
	return trimmed, nil
}

// ParseDueDate converts user input such as "2026-01-07" into a due date at
// midnight UTC. Empty input yields nil.
func ParseDueDate(s string) (*Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return nil, &ValidationError{Field: "due_date", Message: "Due date must look like YYYY-MM-DD"}
	}
	return &ts, nil
}

// ValidateDueDate rejects dates before the day containing now.
func ValidateDueDate(due *Timestamp, now time.Time) error {
	if due == nil {
		return nil
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if due.Before(today) {
		return ErrPastDueDate
	}
	return nil
}
