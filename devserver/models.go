package devserver

import "github.com/jmcleod/mealdraw/session"

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse wraps the identity returned by login and the identity probe.
type UserResponse struct {
	User session.User `json:"user"`
}

type RecordRequest struct {
	Slot  string `json:"slot"`
	Value string `json:"value"`
}
