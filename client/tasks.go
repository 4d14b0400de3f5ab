package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"taskboard/domain"
)

const (
	routeTasks    = "/api/{user}/tasks"
	routeTask     = "/api/{user}/tasks/{id}"
	routeComplete = "/api/{user}/tasks/{id}/complete"
)

var errMissingUser = errors.New("session has no user id")

func tasksPath(userID string) string {
	return "/api/" + url.PathEscape(userID) + "/tasks"
}

func taskPath(userID, taskID string) string {
	return tasksPath(userID) + "/" + url.PathEscape(taskID)
}

// ListTasks returns the user's tasks.
func (c *Client) ListTasks(ctx context.Context, sess Session, opts domain.ListOptions) ([]domain.Task, error) {
	if sess.UserID == "" {
		return nil, errMissingUser
	}
	path := tasksPath(sess.UserID)
	if q := opts.Query(); q != "" {
		path += "?" + q
	}
	tasks := []domain.Task{}
	if err := c.execute(ctx, sess, request{method: http.MethodGet, route: routeTasks, path: path}, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, sess Session, taskID string) (domain.Task, error) {
	if sess.UserID == "" {
		return domain.Task{}, errMissingUser
	}
	var task domain.Task
	err := c.execute(ctx, sess, request{method: http.MethodGet, route: routeTask, path: taskPath(sess.UserID, taskID)}, &task)
	return task, err
}

// CreateTask creates a task. All attempts of one call share an idempotency
// key so a retried POST cannot create the task twice.
func (c *Client) CreateTask(ctx context.Context, sess Session, req domain.TaskCreateRequest) (domain.Task, error) {
	if sess.UserID == "" {
		return domain.Task{}, errMissingUser
	}
	header := http.Header{}
	header.Set(headerIdempotencyKey, uuid.NewString())
	var task domain.Task
	err := c.execute(ctx, sess, request{
		method: http.MethodPost,
		route:  routeTasks,
		path:   tasksPath(sess.UserID),
		body:   req,
		header: header,
	}, &task)
	return task, err
}

// UpdateTask changes a task's description and/or due date.
func (c *Client) UpdateTask(ctx context.Context, sess Session, taskID string, req domain.TaskUpdateRequest) (domain.Task, error) {
	if sess.UserID == "" {
		return domain.Task{}, errMissingUser
	}
	var task domain.Task
	err := c.execute(ctx, sess, request{
		method: http.MethodPut,
		route:  routeTask,
		path:   taskPath(sess.UserID, taskID),
		body:   req,
	}, &task)
	return task, err
}

// CompleteTask sets the completion flag.
func (c *Client) CompleteTask(ctx context.Context, sess Session, taskID string, completed bool) (domain.Task, error) {
	if sess.UserID == "" {
		return domain.Task{}, errMissingUser
	}
	var task domain.Task
	err := c.execute(ctx, sess, request{
		method: http.MethodPatch,
		route:  routeComplete,
		path:   taskPath(sess.UserID, taskID) + "/complete",
		body:   domain.TaskCompleteRequest{Completed: completed},
	}, &task)
	return task, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, sess Session, taskID string) error {
	if sess.UserID == "" {
		return errMissingUser
	}
	return c.execute(ctx, sess, request{method: http.MethodDelete, route: routeTask, path: taskPath(sess.UserID, taskID)}, nil)
}
