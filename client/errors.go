package client

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}
