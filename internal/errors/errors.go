// Package errors maps service failures to HTTP responses and writes the JSON
// error envelope shared by every endpoint.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/3leaps/runprogress/pkg/jobstatus"
)

// Error codes returned in the envelope.
const (
	CodeMissingParameter   = "MISSING_PARAMETER"
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeTimeout            = "TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is an error that knows how it should be presented over HTTP.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// New creates an AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// NewNotFound reports a missing resource.
func NewNotFound(message string) *AppError {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// NewMethodNotAllowed reports an unsupported method on a known route.
func NewMethodNotAllowed(message string) *AppError {
	return New(http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

// NewRateLimited reports a request rejected by the rate limiter.
func NewRateLimited() *AppError {
	return New(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
}

// NewExternalServiceError reports a dependency that is not serving.
func NewExternalServiceError(message string, err error) *AppError {
	return &AppError{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message, Err: err}
}

// WrapInternal wraps err as an internal server error. The request id from ctx
// is recorded in the details when present.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	app := &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: err}
	if id := RequestIDFromContext(ctx); id != "" {
		app.Details = map[string]any{"request_id": id}
	}
	return app
}

// Classify maps err to an AppError. Errors that are already AppErrors are
// returned unchanged; unknown errors become INTERNAL_ERROR with a generic
// message so internal detail is not leaked to clients.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var app *AppError
	if stderrors.As(err, &app) {
		return app
	}

	switch {
	case stderrors.Is(err, jobstatus.ErrMissingParameter):
		return &AppError{Status: http.StatusBadRequest, Code: CodeMissingParameter, Message: err.Error(), Err: err}
	case stderrors.Is(err, jobstatus.ErrInvalidParameter):
		return &AppError{Status: http.StatusBadRequest, Code: CodeInvalidParameter, Message: err.Error(), Err: err}
	case stderrors.Is(err, jobstatus.ErrNotFound):
		return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: err.Error(), Err: err}
	case stderrors.Is(err, jobstatus.ErrStoreUnavailable):
		return &AppError{Status: http.StatusInternalServerError, Code: CodeStoreUnavailable, Message: "error reading job queue", Err: err}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &AppError{Status: http.StatusGatewayTimeout, Code: CodeTimeout, Message: "request timed out", Err: err}
	}
	return &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error", Err: err}
}

type requestIDKey struct{}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
