package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "GET /api/v1/search", "req-1")
	childCtx, child := StartChildSpan(ctx, "rank")
	child.SetAttr("matches", 2)
	child.End()
	root.End()

	require.Len(t, root.Children, 1)
	assert.Equal(t, "req-1", child.TraceID)
	assert.Same(t, child, SpanFromContext(childCtx))

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	assert.Contains(t, out, "span=rank")
	assert.Contains(t, out, "matches=2")
	assert.Contains(t, out, "depth=1")
}

func TestStartChildSpan_NoParent(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Empty(t, span.TraceID)
}

func TestMiddleware(t *testing.T) {
	var seen *Span
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SpanFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/sections", nil))
	require.NotNil(t, seen)
	assert.Equal(t, "GET /api/v1/sections", seen.Name)
}
