package errors

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty query", ErrEmptyQuery, http.StatusBadRequest},
		{"wrapped invalid", fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"document", fmt.Errorf("refresh: %w", ErrDocumentUnavailable), http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"app error", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "something went wrong", UserMessage(fmt.Errorf("dial tcp 10.0.0.1:443: connection refused")))
	assert.Equal(t, "please enter a question", UserMessage(ErrEmptyQuery))

	long := New(ErrInvalidInput, http.StatusBadRequest, strings.Repeat("x", 500))
	msg := UserMessage(long)
	assert.Len(t, msg, maxUserMessage+3)
	assert.True(t, strings.HasSuffix(msg, "..."))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrRateLimited, http.StatusTooManyRequests, "retry in %ds", 30)
	assert.True(t, Is(err, ErrRateLimited))
	assert.Equal(t, "rate limit exceeded: retry in 30s", err.Error())
}
