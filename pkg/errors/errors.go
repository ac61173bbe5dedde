// Package errors defines the error values shared by the listings service and
// its clients, and their mapping onto HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched with errors.Is across package boundaries.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrReadOnly       = errors.New("read only")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Kind is how a sentinel is presented over HTTP. An empty Message means the
// error text itself is safe to show.
type Kind struct {
	Sentinel error
	Code     string
	Status   int
	Message  string
}

// Internal describes anything no sentinel claims. Its message hides the
// cause, which may be a driver error.
var Internal = Kind{Code: "INTERNAL_ERROR", Status: http.StatusInternalServerError, Message: "an internal error occurred"}

var kinds = []Kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, ""},
	{ErrConflict, "CONFLICT", http.StatusConflict, "resource was modified concurrently"},
	{ErrReadOnly, "READ_ONLY", http.StatusNotImplemented, "catalog backend does not accept writes"},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "listing catalog is temporarily unavailable"},
}

// KindOf returns the first Kind whose sentinel is in err's chain, or
// Internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.Sentinel) {
			return k
		}
	}
	return Internal
}

// FromStatus is the inverse used by clients: the sentinel a peer meant by
// answering status, or nil for statuses that carry no shared meaning.
func FromStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidInput
	case http.StatusNotImplemented:
		return ErrReadOnly
	}
	for _, k := range kinds {
		if k.Status == status {
			return k.Sentinel
		}
	}
	if status >= http.StatusInternalServerError {
		return ErrServiceUnavail
	}
	return nil
}

// AppError carries a machine-readable code and the status it is served with.
// Message is shown to clients verbatim.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(sentinel error, message string) *AppError {
	k := KindOf(sentinel)
	return &AppError{Code: k.Code, Message: message, Status: k.Status, Err: sentinel}
}

// NotFound reports a missing resource, e.g. NotFound("property", "42").
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// InvalidInput reports a request the caller has to fix.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message)
}

// ReadOnly reports a write against a backend that only serves reads.
func ReadOnly(message string) *AppError {
	return newAppError(ErrReadOnly, message)
}

// HTTPStatus maps err onto a response status. An AppError anywhere in the
// chain wins over the sentinels.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return KindOf(err).Status
}
