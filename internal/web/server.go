package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/canoncap/internal/debug"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ServerConfig describes the remote trigger server.
type ServerConfig struct {
	Addr        string
	Broadcaster *StatusBroadcaster
	// RunCapture is nil when no camera backend is available; POST /run then
	// answers 503.
	RunCapture RunCaptureFunc
	Form       FormConfig
	// MinRunSpacing is the minimum delay between two run starts.  Zero keeps
	// DefaultMinRunSpacing, a negative value disables the limit.
	MinRunSpacing time.Duration
}

// Server serves the capture form, the run endpoint and the status stream.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer builds a server from cfg.  A nil Broadcaster gets a fresh one.
func NewServer(cfg ServerConfig) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: static files: %w", err)
	}
	b := cfg.Broadcaster
	if b == nil {
		b = NewStatusBroadcaster()
	}

	h := NewHandlers(b, cfg.RunCapture, cfg.Form, subFS)
	switch {
	case cfg.MinRunSpacing < 0:
		h.SetMinRunSpacing(0)
	case cfg.MinRunSpacing > 0:
		h.SetMinRunSpacing(cfg.MinRunSpacing)
	}
	return &Server{addr: cfg.Addr, handlers: h}, nil
}

// Handlers exposes the route handlers, mostly for tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	h := s.handlers
	mux := http.NewServeMux()

	mux.HandleFunc("POST /run", h.HandleRun)
	mux.HandleFunc("GET /config", h.HandleConfig)
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.HandleFunc("GET /images/latest", h.HandleLatestImage)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	mux.HandleFunc("GET /{$}", h.ServeIndex)

	return mux
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down.  Runs started over HTTP derive their context from ctx, so they stop
// with the server.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.runningMu.Lock()
	s.handlers.baseCtx = ctx
	s.handlers.runningMu.Unlock()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		debug.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
