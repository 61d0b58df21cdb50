package receipt

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server serves the receipt dashboard
type Server struct {
	view     *View
	notices  *FlashNotifier
	previews PreviewStore
	format   *Formatter
	index    *template.Template
	mux      *http.ServeMux

	httpServer *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(view *View, notices *FlashNotifier, previews PreviewStore, format *Formatter) *Server {
	return NewServerWithMux(view, notices, previews, format, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(view *View, notices *FlashNotifier, previews PreviewStore, format *Formatter, mux *http.ServeMux) *Server {
	s := &Server{
		view:     view,
		notices:  notices,
		previews: previews,
		format:   format,
		index:    parseIndexTemplate(),
		mux:      mux,
	}
	s.httpServer = &http.Server{
		Handler:     requestLogger(mux),
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)
	s.mux.HandleFunc("GET /static/app.js", s.handleStaticJS)

	s.mux.HandleFunc("GET /previews/{id}", s.handlePreview)
	s.mux.HandleFunc("GET /api/state", s.handleState)

	s.mux.HandleFunc("POST /draft/discard", s.handleDiscardDraft)
	s.mux.HandleFunc("POST /draft", s.handleSelectFile)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /notice/ack", s.handleAcknowledge)

	// Dashboard (register last as it's the catch-all)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /index.html", s.handleIndex)
}

// statusRecorder wraps http.ResponseWriter to capture the written status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs every request with its status and duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Start listens on addr and serves until Shutdown. It returns nil once the
// server is shut down, including when Shutdown ran first.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
