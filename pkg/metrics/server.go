package metrics

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Route is an extra endpoint served on the metrics port.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Mux serves /metrics, every extra route, and an index linking to them.
func (m *Metrics) Mux(routes ...Route) *http.ServeMux {
	mux := http.NewServeMux()
	links := []string{"/metrics"}
	mux.Handle("GET /metrics", m.Handler())
	for _, rt := range routes {
		mux.Handle(rt.Pattern, rt.Handler)
		path := rt.Pattern
		if i := strings.IndexByte(path, ' '); i >= 0 {
			path = path[i+1:]
		}
		links = append(links, path)
	}

	var index strings.Builder
	index.WriteString("<html><body><h1>Agreement Portal</h1><ul>")
	for _, l := range links {
		l = html.EscapeString(l)
		fmt.Fprintf(&index, `<li><a href="%s">%s</a></li>`, l, l)
	}
	index.WriteString("</ul></body></html>")
	page := index.String()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	return mux
}

// StartServer binds the port before returning, then serves Mux(routes...)
// until shutdown is called.
func (m *Metrics) StartServer(port int, routes ...Route) (shutdown func(context.Context) error, err error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("binding metrics port %d: %w", port, err)
	}
	server := &http.Server{
		Handler:      m.Mux(routes...),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", ln.Addr().String(), "routes", len(routes)+1)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown, nil
}
