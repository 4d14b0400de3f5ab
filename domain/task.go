package domain

import (
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
)

// Task represents a single user-owned to-do item as returned by the task API.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *Timestamp `json:"due_date,omitempty"`
	CreatedAt   Timestamp  `json:"created_at"`
	UpdatedAt   Timestamp  `json:"updated_at"`
}

// TaskCreateRequest is the body of a create call.
type TaskCreateRequest struct {
	Description string     `json:"description"`
	DueDate     *Timestamp `json:"due_date,omitempty"`
}

// TaskUpdateRequest is the body of an update call. Nil Description leaves the
// description unchanged; DueDate is tri-state, see OptionalTime.
type TaskUpdateRequest struct {
	Description *string      `json:"description,omitempty"`
	DueDate     OptionalTime `json:"due_date"`
}

// MarshalJSON omits due_date entirely when it was never set so the server
// keeps the stored value, and emits an explicit null when it was cleared.
func (r TaskUpdateRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 2)
	if r.Description != nil {
		body["description"] = *r.Description
	}
	if r.DueDate.Set {
		body["due_date"] = r.DueDate
	}
	return sonic.ConfigStd.Marshal(body)
}

// TaskCompleteRequest is the body of a complete call.
type TaskCompleteRequest struct {
	Completed bool `json:"completed"`
}

// ListOptions narrows a list call.
type ListOptions struct {
	Completed *bool
	Limit     int
	Offset    int
}

// Query encodes the options as a URL query string without the leading '?'.
func (o ListOptions) Query() string {
	params := url.Values{}
	if o.Completed != nil {
		params.Set("completed", strconv.FormatBool(*o.Completed))
	}
	if o.Limit > 0 {
		params.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		params.Set("offset", strconv.Itoa(o.Offset))
	}
	return params.Encode()
}

// Stats summarises a task list.
type Stats struct {
	Total     int
	Active    int
	Completed int
}

// Summarize counts tasks by completion state.
func Summarize(tasks []Task) Stats {
	st := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			st.Completed++
		} else {
			st.Active++
		}
	}
	return st
}
