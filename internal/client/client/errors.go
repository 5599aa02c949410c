package client

import (
	"errors"
	"fmt"
)

// ErrUnavailable means the server could not be reached at all.
var ErrUnavailable = errors.New("server unavailable")

// APIError is a non-2xx answer that does not map to a domain error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}
