package client

import (
	"errors"
	"fmt"
	"net/http"
)

// SessionExpiredMessage is shown to users when the API rejects their token.
const SessionExpiredMessage = "Session expired. Please sign in again."

// NetworkError is returned when no response was received at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UnauthorizedError is returned on HTTP 401. It is terminal.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return SessionExpiredMessage
	}
	return e.Message
}

// RequestFailedError is returned for any other non-2xx response.
type RequestFailedError struct {
	Status  int
	Message string
	// Body holds the parsed JSON error body, or an empty map when it did not parse.
	Body any
}

func (e *RequestFailedError) Error() string {
	return e.Message
}

// DecodeError is returned when a successful response carries a body that
// cannot be decoded into the requested value.
type DecodeError struct {
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response (status %d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure: a network error or
// a server-side (5xx) response.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var reqErr *RequestFailedError
	if errors.As(err, &reqErr) {
		return reqErr.Status >= http.StatusInternalServerError && reqErr.Status < 600
	}
	return false
}

// IsUnauthorized reports whether err came from a 401 response.
func IsUnauthorized(err error) bool {
	var unauth *UnauthorizedError
	return errors.As(err, &unauth)
}

// IsNetworkError reports whether err means the API could not be reached.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusCode extracts the HTTP status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	var reqErr *RequestFailedError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	if IsUnauthorized(err) {
		return http.StatusUnauthorized
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Status
	}
	return 0
}
