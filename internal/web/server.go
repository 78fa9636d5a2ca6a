package web

import (
	"context"
	"net/http"
	"time"

	"github.com/cjeanneret/snapcam/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, ctrl Controller, sink MediaSink) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, ctrl, sink),
	}
}

// Handlers exposes the handlers (to wait for pending deliveries on shutdown).
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	h := s.handlers

	mux.HandleFunc("GET /settings", h.HandleSettings)
	mux.HandleFunc("GET /devices", h.HandleDevices)
	mux.HandleFunc("POST /session/start", h.HandleStart)
	mux.HandleFunc("POST /session/authorize", h.HandleAuthorize)
	mux.HandleFunc("POST /session/stop", h.HandleStop)
	mux.HandleFunc("POST /mode", h.HandleMode)
	mux.HandleFunc("POST /position", h.HandlePosition)
	mux.HandleFunc("POST /position/toggle", h.HandleTogglePosition)
	mux.HandleFunc("POST /flash/toggle", h.HandleToggleFlash)
	mux.HandleFunc("POST /torch/toggle", h.HandleToggleTorch)
	mux.HandleFunc("POST /capture/photo", h.HandleCapturePhoto)
	mux.HandleFunc("POST /capture/video", h.HandleCaptureVideo)
	mux.HandleFunc("GET /media", h.HandleMediaList)
	mux.HandleFunc("GET /media/{name}", h.HandleMediaFile)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.HandleFunc("GET /status/ws", h.HandleStatusSocket)

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.handlers.Wait()
		return err
	}
}
