// Package errors defines the portal's sentinel errors and an AppError type
// that carries an HTTP status alongside a short client-safe message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyQuery          = errors.New("query is empty")
	ErrDocumentUnavailable = errors.New("agreement unavailable")
	ErrExplainUnavailable  = errors.New("explanation unavailable")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

// maxUserMessage bounds diagnostics returned to end users.
const maxUserMessage = 160

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrDocumentUnavailable), errors.Is(err, ErrExplainUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns a short, bounded description of err that is safe to
// show to an end user. Unknown errors collapse to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message
	case errors.Is(err, ErrEmptyQuery):
		msg = "please enter a question"
	case errors.Is(err, ErrDocumentUnavailable):
		msg = "the agreement could not be loaded right now, please try again shortly"
	case errors.Is(err, ErrExplainUnavailable):
		msg = "AI explanations are unavailable right now, showing matching sections instead"
	case errors.Is(err, ErrRateLimited):
		msg = "too many requests, please wait a moment"
	case errors.Is(err, ErrTimeout):
		msg = "the request took too long, please try again"
	case errors.Is(err, ErrInvalidInput):
		msg = "invalid request"
	default:
		msg = "something went wrong"
	}
	return truncate(msg, maxUserMessage)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
