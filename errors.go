package microapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors.
var (
	ErrBindBody        = errors.New("bind body")
	ErrUnknownNode     = errors.New("unknown route node")
	ErrUnknownMethod   = errors.New("unknown route method")
	ErrNilHandler      = errors.New("nil handler")
	ErrDefinitionCycle = errors.New("definition cycle")
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Bodier is implemented by errors that carry their own response body.
type Bodier interface {
	ResponseBody() any
}

// ProblemDetail is an RFC 9457 problem details response.
//
//nolint:errname // RFC 9457 standard name
type ProblemDetail struct {
	Type     string            `json:"type,omitempty" yaml:"type,omitempty"`
	Title    string            `json:"title,omitempty" yaml:"title,omitempty"`
	Status   int               `json:"status" yaml:"status"`
	Detail   string            `json:"detail,omitempty" yaml:"detail,omitempty"`
	Instance string            `json:"instance,omitempty" yaml:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Error returns the detail message (or title if detail is empty).
func (p *ProblemDetail) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// StatusCode returns the HTTP status code.
func (p *ProblemDetail) StatusCode() int { return p.Status }

// ValidationError describes a single field validation failure.
type ValidationError struct {
	Field   string `json:"field" yaml:"field"`
	Message string `json:"message" yaml:"message"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// SchemaError is returned by a Checker when a value does not match its schema.
type SchemaError struct {
	Errors []ValidationError
}

func (e *SchemaError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "schema validation failed"
	case 1:
		return fieldMessage(e.Errors[0])
	default:
		return fmt.Sprintf("%s (and %d more)", fieldMessage(e.Errors[0]), len(e.Errors)-1)
	}
}

func fieldMessage(v ValidationError) string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// HTTPError is an error with an HTTP status code.
type HTTPError struct {
	Status  int    `json:"status" yaml:"status"`
	Message string `json:"message" yaml:"message"`
}

// Error returns the error message.
func (e *HTTPError) Error() string { return e.Message }

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// Error returns an error with the given HTTP status code and message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Failure is the {body, status} shape raised by middleware, handlers and
// custom validators. The body is written to the response as is.
type Failure struct {
	Status int
	Body   any
}

// Fail returns a Failure carrying status and body.
func Fail(status int, body any) error {
	return &Failure{Status: status, Body: body}
}

func (f *Failure) Error() string {
	if s, ok := f.Body.(string); ok && s != "" {
		return s
	}
	if err, ok := f.Body.(error); ok {
		return err.Error()
	}
	if f.Status != 0 {
		return http.StatusText(f.Status)
	}
	return "failure"
}

// StatusCode returns the HTTP status code.
func (f *Failure) StatusCode() int { return f.Status }

// ResponseBody returns the body to write.
func (f *Failure) ResponseBody() any { return f.Body }

// ResponseWarning is recorded on a Response when the produced body does not
// match its schema or the custom response validator rejects it. Warnings
// never change the status or body that is sent.
type ResponseWarning struct {
	Source string // "schema" or "validator"
	Err    error
}

func (w *ResponseWarning) Error() string {
	return "response " + w.Source + ": " + w.Err.Error()
}

func (w *ResponseWarning) Unwrap() error { return w.Err }

// CycleError reports a definition that depends on itself.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "definition cycle: " + strings.Join(e.Path, " -> ")
}

// Is matches ErrDefinitionCycle.
func (e *CycleError) Is(target error) bool { return target == ErrDefinitionCycle }

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// errorResponse picks the status and body written for err. Errors without
// a status get fallback.
func errorResponse(err error, fallback int) (int, any) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, &HTTPError{
			Status:  http.StatusServiceUnavailable,
			Message: "request timed out",
		}
	}

	status := fallback
	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		status = sc.StatusCode()
	}

	var b Bodier
	if errors.As(err, &b) {
		if body := b.ResponseBody(); body != nil {
			return status, body
		}
	}

	var pd *ProblemDetail
	if errors.As(err, &pd) {
		return status, pd
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return status, he
	}

	return status, &HTTPError{Status: status, Message: err.Error()}
}

// internalError is the generic body for contained handler failures.
func internalError() *HTTPError {
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}
