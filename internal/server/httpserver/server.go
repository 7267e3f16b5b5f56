package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"
)

const readHeaderTimeout = 5 * time.Second

// Server wraps an http.Server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a server for addr.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		handler: handler,
	}
}

// ListenAndServe starts serving on the configured address.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting connections and waits for active requests.
// Hijacked websocket connections are not tracked; close the Hub first.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
