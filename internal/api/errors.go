package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrUnprocessable    = errors.New("no expense could be identified")
	ErrNoResponse       = errors.New("no response from server")
	ErrRequestSetup     = errors.New("request could not be prepared")
	ErrHasSubcategories = errors.New("category has subcategories")
	ErrServer           = errors.New("server rejected the request")
)

// CodeHasSubcategories is the error code the backend uses when a category
// cannot be deleted without force.
const CodeHasSubcategories = "CATEGORY_HAS_SUBCATEGORIES"

type Kind int

const (
	KindServer Kind = iota + 1
	KindUnprocessable
	KindConflict
	KindNoResponse
	KindRequestSetup
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindUnprocessable:
		return "unprocessable"
	case KindConflict:
		return "conflict"
	case KindNoResponse:
		return "no_response"
	case KindRequestSetup:
		return "request_setup"
	default:
		return "unknown"
	}
}

// Error is a classified failure of a backend call
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	Method     string
	Path       string
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Method != "" {
		fmt.Fprintf(&sb, "%s %s: ", e.Method, e.Path)
	}
	switch {
	case e.StatusCode > 0 && e.Message != "":
		fmt.Fprintf(&sb, "%d %s", e.StatusCode, e.Message)
	case e.StatusCode > 0:
		fmt.Fprintf(&sb, "status %d", e.StatusCode)
	case e.Message != "":
		sb.WriteString(e.Message)
	default:
		sb.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnprocessable:
		return e.Kind == KindUnprocessable
	case ErrNoResponse:
		return e.Kind == KindNoResponse
	case ErrRequestSetup:
		return e.Kind == KindRequestSetup
	case ErrHasSubcategories:
		return e.Kind == KindConflict
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// KindOf returns the kind of err, or 0 when err is not an *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// ServerMessage returns the message the server sent with err, if any
func ServerMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// classifyTransport decides whether a failed call ever reached the server
func classifyTransport(method, path string, err error) *Error {
	kind := KindRequestSetup
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindNoResponse
	case errors.As(err, &urlErr) && urlErr.Op != "parse":
		kind = KindNoResponse
	}
	return &Error{Kind: kind, Method: method, Path: path, Err: err}
}

// classifyStatus maps an HTTP error status to a kind
func classifyStatus(status int) Kind {
	if status == 422 {
		return KindUnprocessable
	}
	return KindServer
}

// isSubcategoryConflict recognises the backend's refusal to delete a
// category that still has subcategories.
func isSubcategoryConflict(e *Error) bool {
	if e.StatusCode == 409 || strings.EqualFold(e.Code, CodeHasSubcategories) {
		return true
	}
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		strings.Contains(strings.ToLower(e.Message), "subcategor")
}
