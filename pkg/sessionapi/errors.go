package sessionapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is matched by APIErrors with status 404
	ErrNotFound = errors.New("not found")
	// ErrAlreadyVoted is matched by APIErrors with status 409 from the votes endpoint
	ErrAlreadyVoted = errors.New("agent already voted")
)

// APIError is a non-2xx response from the session API
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: session api status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: session api status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Is lets errors.Is match the package sentinels by status code
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrAlreadyVoted:
		return e.StatusCode == http.StatusConflict && e.Op == opPostVote
	}
	return false
}
