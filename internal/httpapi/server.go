package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/devtab-sh/secure-dev-manager/internal/dispatch"
)

const (
	defaultAddr            = "127.0.0.1:7787"
	defaultReadHeaderWait  = 5 * time.Second
	defaultShutdownWindow  = 5 * time.Second
)

// Server wraps the diagnostic gin.Engine in an http.Server with graceful
// shutdown, mirroring the rest of this codebase's context-driven lifecycle.
type Server struct {
	srv             *http.Server
	shutdownWindow  time.Duration
}

// NewServer builds a diagnostic HTTP server bound to addr (or the default
// loopback address when empty). It is entirely optional: the core's
// operations are reached through the stdio dispatch loop regardless of
// whether this server is started.
func NewServer(addr string, d *dispatch.Dispatcher) *Server {
	router := NewRouter(d)
	return &Server{
		srv: &http.Server{
			Addr:              normalizeAddr(addr),
			Handler:           router,
			ReadHeaderTimeout: defaultReadHeaderWait,
		},
		shutdownWindow: defaultShutdownWindow,
	}
}

// Run serves until ctx is cancelled, then shuts down within the configured
// window. A clean shutdown is reported as a nil error.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	stop := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownWindow)
			defer cancel()
			_ = s.srv.Shutdown(shutdownCtx)
		case <-stop:
		}
	}()

	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	err := <-errCh
	close(stop)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the server's configured listen address.
func (s *Server) Addr() string { return s.srv.Addr }

func normalizeAddr(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return defaultAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
