// Package apierrors provides a standardized error type for the registry's
// REST and WebSocket handlers.
//
// Every handler failure maps 1:1 onto an HTTP status code, following the
// error kinds of the registry's error handling design: MalformedRequest,
// NotFound, MethodNotAllowed, ParentMissing, DuplicateId,
// UnsupportedVersion, NotImplemented, Internal.
//
// Usage:
//
//	return apierrors.NotFound("sender")
//	return apierrors.Wrap(apierrors.KindInternal, "store corrupted", err)
//
// In a handler:
//
//	if err != nil {
//	    apierrors.WriteJSON(w, err)
//	    return
//	}
package apierrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindMalformedRequest   Kind = "MALFORMED_REQUEST"
	KindNotFound           Kind = "NOT_FOUND"
	KindMethodNotAllowed   Kind = "METHOD_NOT_ALLOWED"
	KindParentMissing      Kind = "PARENT_MISSING"
	KindDuplicateID        Kind = "DUPLICATE_ID"
	KindUnsupportedVersion Kind = "UNSUPPORTED_VERSION"
	KindNotImplemented     Kind = "NOT_IMPLEMENTED"
	KindInternal           Kind = "INTERNAL"
)

// Error is a standardized application error carrying its own HTTP status.
type Error struct {
	Kind       Kind   `json:"code"`
	Message    string `json:"error"`
	Details    string `json:"debug,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an Error of the given kind with its status code inferred.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: statusFor(kind)}
}

// Wrap attaches an underlying error as debug detail.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

func statusFor(kind Kind) int {
	switch kind {
	case KindMalformedRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindParentMissing, KindDuplicateID:
		return http.StatusConflict
	case KindUnsupportedVersion:
		return http.StatusNotFound
	case KindNotImplemented:
		return http.StatusNotImplemented
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors mirroring the error kinds of the design.

func MalformedRequest(message string) *Error { return New(KindMalformedRequest, message) }
func NotFound(resource string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}
func MethodNotAllowed() *Error { return New(KindMethodNotAllowed, "method not allowed") }
func ParentMissing(parentID string) *Error {
	return New(KindParentMissing, fmt.Sprintf("parent resource %s does not exist", parentID))
}
func DuplicateID(id string) *Error {
	return New(KindDuplicateID, fmt.Sprintf("resource %s already exists", id))
}
func UnsupportedVersion(version string) *Error {
	return New(KindUnsupportedVersion, fmt.Sprintf("unsupported API version %s", version))
}
func NotImplemented() *Error { return New(KindNotImplemented, "not implemented") }
func Internal(message string) *Error { return New(KindInternal, message) }

// WriteJSON writes err as a JSON error body with the matching status code.
// A nil or non-*Error is reported as 500 Internal Server Error, mirroring
// the router's exception-handler fallback.
func WriteJSON(w http.ResponseWriter, err error) {
	appErr, ok := err.(*Error)
	if !ok {
		appErr = Wrap(KindInternal, "internal error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(appErr)
}
