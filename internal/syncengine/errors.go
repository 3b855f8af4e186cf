package syncengine

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched through errors.Is on the typed errors below.
var (
	ErrSignedOut  = errors.New("signed out")
	ErrAuth       = errors.New("credential rejected")
	ErrValidation = errors.New("invalid input")
	ErrTransient  = errors.New("fetch failed")
	ErrMutation   = errors.New("mutation failed")
)

// HTTPError is a non-2xx answer from the portal API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// AuthError means the credential was rejected. It ends the session: the
// engine has already signed out and cleared its caches when it returns one.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string   { return fmt.Sprintf("%s: credential rejected: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error   { return e.Err }
func (e *AuthError) Is(t error) bool { return t == ErrAuth }

// ValidationError is raised before any request is sent; the caches are
// untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string   { return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason) }
func (e *ValidationError) Is(t error) bool { return t == ErrValidation }

// TransientFetchError is a failed read. The affected cache slice keeps its
// previous value.
type TransientFetchError struct {
	Resource string
	Err      error
}

func (e *TransientFetchError) Error() string   { return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err) }
func (e *TransientFetchError) Unwrap() error   { return e.Err }
func (e *TransientFetchError) Is(t error) bool { return t == ErrTransient }

// MutationError is a failed write. No resync is triggered because the
// server state is presumed unchanged.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string   { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *MutationError) Unwrap() error   { return e.Err }
func (e *MutationError) Is(t error) bool { return t == ErrMutation }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func isUnauthorized(err error) bool { return StatusCode(err) == http.StatusUnauthorized }
