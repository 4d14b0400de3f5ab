package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// DefaultBaseURL is used when no API location is configured.
const DefaultBaseURL = "http://localhost:8000"

const headerIdempotencyKey = "Idempotency-Key"

// Client issues JSON requests against the task API, normalising failures
// and retrying transient ones.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
	sleep   Sleeper
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSleeper overrides how the client waits between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger sets the logger used for retry warnings and request events.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   DefaultRetryPolicy(),
		sleep:   sleepContext,
		logger:  log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// request describes one logical call.
type request struct {
	method string
	route  string
	path   string
	body   any
	header http.Header
}

// outcome is the tagged result of a logical call once retries are exhausted.
type outcome struct {
	attempts int
	waited   time.Duration
	status   int
	err      error
}

// Do sends method to path with an optional JSON body and decodes a JSON
// response into out. A nil out or a 204 response leaves out untouched.
func (c *Client) Do(ctx context.Context, sess Session, method, path string, body, out any) error {
	return c.execute(ctx, sess, request{method: method, route: path, path: path, body: body}, out)
}

func (c *Client) execute(ctx context.Context, sess Session, req request, out any) error {
	metrics, ctx := newRequestMetrics(ctx, c.logger, req.method, req.route)

	var payload []byte
	if req.body != nil {
		data, err := sonic.ConfigStd.Marshal(req.body)
		if err != nil {
			metrics.finish(outcome{err: err})
			return err
		}
		payload = data
	}

	res := outcome{}
	for attempt := 0; ; attempt++ {
		res.attempts = attempt + 1
		res.status, res.err = c.attempt(ctx, sess, req, payload, out)
		if !c.retry.ShouldRetry(res.err, attempt) || ctx.Err() != nil {
			break
		}
		delay := c.retry.Delay(attempt)
		if c.logger != nil {
			c.logger.WithFields(log.Fields{
				"method":   req.method,
				"route":    req.route,
				"status":   res.status,
				"delay_ms": durationToMillis(delay),
				"attempt":  attempt + 1,
				"retries":  c.retry.MaxRetries,
			}).WithError(res.err).Warn("request failed, retrying")
		}
		if err := c.sleep(ctx, delay); err != nil {
			res.err = err
			break
		}
		res.waited += delay
	}

	metrics.finish(res)
	return res.err
}

// attempt performs a single round trip. Headers and the token are rebuilt on
// every call so a retry never reuses a stale token.
func (c *Client) attempt(ctx context.Context, sess Session, req request, payload []byte, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, vals := range req.header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if sess.Credentials != nil {
		token, err := sess.Credentials.Token(ctx)
		if err != nil {
			return 0, err
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp.StatusCode, ctxErr
		}
		return resp.StatusCode, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if sess.Credentials != nil {
			sess.Credentials.Invalidate()
		}
		return resp.StatusCode, &UnauthorizedError{Message: SessionExpiredMessage}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		parsed := parseErrorBody(raw)
		return resp.StatusCode, &RequestFailedError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, parsed),
			Body:    parsed,
		}
	case resp.StatusCode == http.StatusNoContent:
		return resp.StatusCode, nil
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := sonic.ConfigStd.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &DecodeError{Status: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, nil
}

// IsCanceled reports whether err stems from the caller giving up.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
