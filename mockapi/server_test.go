package mockapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/client"
	"taskboard/domain"
)

type testServer struct {
	*httptest.Server
	storage *MemoryStorage
}

func newTestServer(t *testing.T, opts ...ServerOption) *testServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	var n atomic.Int64
	storage := NewMemoryStorage()
	reg := prometheus.NewRegistry()
	base := []ServerOption{
		WithServerLogger(logger),
		WithIDGenerator(func() string { return fmt.Sprintf("task-%d", n.Add(1)) }),
	}
	api := NewServer(storage, reg, append(base, opts...)...)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, storage: storage}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (ts *testServer) do(t *testing.T, method, path, body string, header map[string]string) response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

func (ts *testServer) scrape(t *testing.T) string {
	t.Helper()
	r := ts.do(t, http.MethodGet, "/metrics", "", nil)
	if r.status != http.StatusOK {
		t.Fatalf("metrics status %d", r.status)
	}
	return string(r.body)
}

func decodeTask(t *testing.T, r response) domain.Task {
	t.Helper()
	var task domain.Task
	if err := sonic.ConfigStd.Unmarshal(r.body, &task); err != nil {
		t.Fatalf("decode task %s: %v", r.body, err)
	}
	return task
}

func decodeDetail(t *testing.T, r response) any {
	t.Helper()
	var body struct {
		Detail any `json:"detail"`
	}
	if err := sonic.ConfigStd.Unmarshal(r.body, &body); err != nil {
		t.Fatalf("decode detail %s: %v", r.body, err)
	}
	return body.Detail
}

func TestCreateAndGetTask(t *testing.T) {
	ts := newTestServer(t)
	r := ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"  Buy milk  ","due_date":"2026-03-12"}`, nil)
	if r.status != http.StatusCreated {
		t.Fatalf("status = %d, body %s", r.status, r.body)
	}
	created := decodeTask(t, r)
	if created.ID != "task-1" || created.UserID != "alice" || created.Description != "Buy milk" {
		t.Fatalf("unexpected task: %+v", created)
	}
	if created.DueDate == nil || created.DueDate.Format("2006-01-02") != "2026-03-12" {
		t.Fatalf("unexpected due date: %v", created.DueDate)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected created_at == updated_at on create")
	}

	r = ts.do(t, http.MethodGet, "/api/alice/tasks/task-1", "", nil)
	if r.status != http.StatusOK || decodeTask(t, r).ID != "task-1" {
		t.Fatalf("get: %d %s", r.status, r.body)
	}
	r = ts.do(t, http.MethodGet, "/api/bob/tasks/task-1", "", nil)
	if r.status != http.StatusNotFound || decodeDetail(t, r) != "Task not found" {
		t.Fatalf("cross-user get: %d %s", r.status, r.body)
	}
}

func TestCreateValidation(t *testing.T) {
	ts := newTestServer(t)
	long := strings.Repeat("x", 201)
	cases := []struct {
		name string
		body string
		typ  string
		loc  string
	}{
		{"missing", `{}`, "missing", "description"},
		{"empty", `{"description":""}`, "string_too_short", "description"},
		{"blank", `{"description":"   "}`, "value_error", "description"},
		{"too long", `{"description":"` + long + `"}`, "string_too_long", "description"},
		{"wrong type", `{"description":42}`, "string_type", "description"},
		{"bad due", `{"description":"ok","due_date":"soon"}`, "datetime_parsing", "due_date"},
		{"invalid json", `{"description":`, "json_invalid", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := ts.do(t, http.MethodPost, "/api/alice/tasks", tc.body, nil)
			if r.status != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, body %s", r.status, r.body)
			}
			entries, ok := decodeDetail(t, r).([]any)
			if !ok || len(entries) != 1 {
				t.Fatalf("expected one detail entry, got %s", r.body)
			}
			entry := entries[0].(map[string]any)
			loc := entry["loc"].([]any)
			if entry["type"] != tc.typ || fmt.Sprint(loc[len(loc)-1]) != tc.loc {
				t.Fatalf("unexpected entry: %v", entry)
			}
		})
	}
	if list, _ := ts.storage.ListTasks(context.Background(), "alice"); len(list) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(list))
	}
}

func TestListQuery(t *testing.T) {
	ts := newTestServer(t)
	for _, d := range []string{"one", "two", "three"} {
		ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"`+d+`"}`, nil)
	}
	ts.do(t, http.MethodPatch, "/api/alice/tasks/task-2/complete", `{"completed":true}`, nil)

	var tasks []domain.Task
	r := ts.do(t, http.MethodGet, "/api/alice/tasks", "", nil)
	if err := sonic.ConfigStd.Unmarshal(r.body, &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 3 || tasks[0].Description != "three" {
		t.Fatalf("expected newest first, got %+v", tasks)
	}

	r = ts.do(t, http.MethodGet, "/api/alice/tasks?completed=false&limit=1&offset=1", "", nil)
	tasks = nil
	if err := sonic.ConfigStd.Unmarshal(r.body, &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Description != "one" {
		t.Fatalf("unexpected page: %+v", tasks)
	}

	bad := map[string]string{
		"limit=0":         "Input should be greater than or equal to 1",
		"limit=1001":      "Input should be less than or equal to 1000",
		"offset=-1":       "Input should be greater than or equal to 0",
		"limit=abc":       "Input should be a valid integer, unable to parse string as an integer",
		"completed=maybe": "Input should be a valid boolean, unable to interpret input",
	}
	for query, msg := range bad {
		r := ts.do(t, http.MethodGet, "/api/alice/tasks?"+query, "", nil)
		if r.status != http.StatusUnprocessableEntity || !strings.Contains(string(r.body), msg) {
			t.Fatalf("%s: %d %s", query, r.status, r.body)
		}
	}
}

func TestUpdateTask(t *testing.T) {
	ts := newTestServer(t)
	created := decodeTask(t, ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"draft","due_date":"2026-03-12"}`, nil))

	r := ts.do(t, http.MethodPut, "/api/alice/tasks/task-1", `{"description":"final"}`, nil)
	updated := decodeTask(t, r)
	if r.status != http.StatusOK || updated.Description != "final" || updated.DueDate == nil {
		t.Fatalf("absent due_date should be kept: %d %s", r.status, r.body)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt.Time) {
		t.Fatalf("updated_at did not advance")
	}

	r = ts.do(t, http.MethodPut, "/api/alice/tasks/task-1", `{"due_date":null}`, nil)
	cleared := decodeTask(t, r)
	if cleared.DueDate != nil || cleared.Description != "final" {
		t.Fatalf("null due_date should clear: %s", r.body)
	}

	r = ts.do(t, http.MethodPut, "/api/alice/tasks/task-1", `{"description":"  "}`, nil)
	if r.status != http.StatusUnprocessableEntity {
		t.Fatalf("blank description: %d %s", r.status, r.body)
	}
	r = ts.do(t, http.MethodPut, "/api/alice/tasks/missing", `{"description":"x"}`, nil)
	if r.status != http.StatusNotFound {
		t.Fatalf("missing task: %d", r.status)
	}
}

func TestCompleteTask(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"toggle me"}`, nil)

	r := ts.do(t, http.MethodPatch, "/api/alice/tasks/task-1/complete", "", nil)
	if !decodeTask(t, r).Completed {
		t.Fatalf("expected body-less complete to toggle on: %s", r.body)
	}
	r = ts.do(t, http.MethodPatch, "/api/alice/tasks/task-1/complete", `{"completed":true}`, nil)
	if !decodeTask(t, r).Completed {
		t.Fatalf("expected explicit true to stay completed")
	}
	r = ts.do(t, http.MethodPatch, "/api/alice/tasks/task-1/complete", `{"completed":false}`, nil)
	if decodeTask(t, r).Completed {
		t.Fatalf("expected explicit false")
	}
	r = ts.do(t, http.MethodPatch, "/api/alice/tasks/task-1/complete", `{"completed":"nope"}`, nil)
	if r.status != http.StatusUnprocessableEntity {
		t.Fatalf("bad completed: %d", r.status)
	}
}

func TestDeleteTask(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"bye"}`, nil)
	r := ts.do(t, http.MethodDelete, "/api/alice/tasks/task-1", "", nil)
	if r.status != http.StatusNoContent || len(r.body) != 0 {
		t.Fatalf("delete: %d %q", r.status, r.body)
	}
	r = ts.do(t, http.MethodDelete, "/api/alice/tasks/task-1", "", nil)
	if r.status != http.StatusNotFound {
		t.Fatalf("second delete: %d", r.status)
	}
	if m := ts.scrape(t); !strings.Contains(m, `taskboard_mock_task_mutations_total{op="delete"} 1`) {
		t.Fatalf("delete mutation not counted:\n%s", m)
	}
}

func TestIdempotentCreate(t *testing.T) {
	ts := newTestServer(t)
	h := map[string]string{headerIdempotencyKey: "key-1"}
	first := decodeTask(t, ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"once"}`, h))
	r := ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"once"}`, h)
	if r.status != http.StatusCreated {
		t.Fatalf("replay status = %d", r.status)
	}
	if second := decodeTask(t, r); second.ID != first.ID {
		t.Fatalf("replay returned %s, want %s", second.ID, first.ID)
	}
	if list, _ := ts.storage.ListTasks(context.Background(), "alice"); len(list) != 1 {
		t.Fatalf("expected a single stored task, got %d", len(list))
	}
	if m := ts.scrape(t); !strings.Contains(m, "taskboard_mock_idempotent_replays_total 1") {
		t.Fatalf("replay not counted:\n%s", m)
	}

	other := decodeTask(t, ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"once"}`, map[string]string{headerIdempotencyKey: "key-2"}))
	if other.ID == first.ID {
		t.Fatalf("different key must create a new task")
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, WithAuth(NewSharedSecretAuth(testSecret)))
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})

	r := ts.do(t, http.MethodGet, "/api/alice/tasks", "", nil)
	if r.status != http.StatusUnauthorized || decodeDetail(t, r) != "Missing authentication token" {
		t.Fatalf("missing token: %d %s", r.status, r.body)
	}
	if r.header.Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected WWW-Authenticate header")
	}

	r = ts.do(t, http.MethodGet, "/api/alice/tasks", "", map[string]string{"Authorization": "Bearer a.b.c"})
	detail, _ := decodeDetail(t, r).(string)
	if r.status != http.StatusUnauthorized || !strings.HasPrefix(detail, "Invalid or expired token: ") {
		t.Fatalf("bad token: %d %s", r.status, r.body)
	}

	r = ts.do(t, http.MethodGet, "/api/bob/tasks", "", map[string]string{"Authorization": "Bearer " + token})
	if r.status != http.StatusForbidden || decodeDetail(t, r) != "Access denied: User ID mismatch" {
		t.Fatalf("mismatch: %d %s", r.status, r.body)
	}

	r = ts.do(t, http.MethodGet, "/api/alice/tasks", "", map[string]string{"Authorization": "Bearer " + token})
	if r.status != http.StatusOK {
		t.Fatalf("authorized: %d %s", r.status, r.body)
	}
}

func TestHealthzMetricsAndCORS(t *testing.T) {
	ts := newTestServer(t)
	if r := ts.do(t, http.MethodGet, "/healthz", "", nil); r.status != http.StatusOK {
		t.Fatalf("healthz: %d", r.status)
	}
	ts.do(t, http.MethodPost, "/api/alice/tasks", `{"description":"count me"}`, nil)

	body := ts.scrape(t)
	if !strings.Contains(body, "taskboard_mock_task_mutations_total") || !strings.Contains(body, "taskboard_mock_requests_total") {
		t.Fatalf("metrics missing: %s", body)
	}

	r := ts.do(t, http.MethodOptions, "/api/alice/tasks", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodPatch,
	})
	if r.header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS headers, got %v", r.header)
	}

	r = ts.do(t, http.MethodGet, "/nope", "", nil)
	if r.status != http.StatusNotFound || decodeDetail(t, r) != "Not Found" {
		t.Fatalf("unknown route: %d %s", r.status, r.body)
	}
}

func TestClientRoundTrip(t *testing.T) {
	ts := newTestServer(t, WithAuth(NewSharedSecretAuth(testSecret)))
	logger, _ := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	c := client.New(ts.URL, client.WithLogger(logger))
	token, err := client.SignDevToken("alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sess := client.Session{UserID: "alice", Credentials: client.NewTokenStore(token, "")}
	ctx := context.Background()

	task, err := c.CreateTask(ctx, sess, domain.TaskCreateRequest{Description: "Write report"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	desc := "Write final report"
	task, err = c.UpdateTask(ctx, sess, task.ID, domain.TaskUpdateRequest{Description: &desc, DueDate: domain.ClearTime()})
	if err != nil || task.Description != desc {
		t.Fatalf("update: %+v %v", task, err)
	}
	task, err = c.CompleteTask(ctx, sess, task.ID, true)
	if err != nil || !task.Completed {
		t.Fatalf("complete: %+v %v", task, err)
	}
	done := true
	tasks, err := c.ListTasks(ctx, sess, domain.ListOptions{Completed: &done})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("list: %+v %v", tasks, err)
	}
	if err := c.DeleteTask(ctx, sess, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err = c.GetTask(ctx, sess, task.ID)
	if client.StatusCode(err) != http.StatusNotFound || err.Error() != "Task not found" {
		t.Fatalf("expected Task not found, got %v", err)
	}
	_, err = c.CreateTask(ctx, sess, domain.TaskCreateRequest{Description: ""})
	if client.StatusCode(err) != http.StatusUnprocessableEntity || !strings.Contains(err.Error(), "body.description") {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = c.ListTasks(ctx, client.Session{UserID: "bob", Credentials: client.NewTokenStore(token, "")}, domain.ListOptions{})
	if client.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	_, err = c.ListTasks(ctx, client.Session{UserID: "alice", Credentials: client.Anonymous{}}, domain.ListOptions{})
	if !client.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
