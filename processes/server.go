package processes

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server is a web server the Runner can launch in the background and stop.
type Server interface {
	// Start binds addr and begins serving without blocking.
	// Bind and launch errors are returned directly.
	Start(addr string) error
	// Wait blocks until the server has terminated. It returns nil after a requested stop.
	Wait() error
	// Shutdown asks the server to stop and blocks until it does or ctx is done.
	Shutdown(ctx context.Context) error
	// Kill terminates the server immediately.
	Kill() error
}

// ServerState represents the lifecycle state of the embedded server.
type ServerState int

const (
	// StateIdle means the server has not been started yet.
	StateIdle ServerState = iota
	// StateStarting means the server is launched but not yet confirmed ready.
	StateStarting
	// StateRunning means the server passed its readiness check.
	StateRunning
	// StateStopping means a stop has been requested.
	StateStopping
	// StateStopped means the server terminated after a stop request.
	StateStopped
	// StateFailed means the server failed to start or crashed.
	StateFailed
)

// String returns a string representation of the ServerState.
func (s ServerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "InvalidState"
	}
}

// HTTPServer runs an http.Handler on a goroutine inside this process.
type HTTPServer struct {
	handler     http.Handler
	baseContext func(net.Listener) context.Context
	onShutdown  []func()

	mu     sync.Mutex
	server *http.Server
	done   chan struct{}
	err    error
}

// NewHTTPServer creates an HTTPServer for handler. baseContext may be nil.
func NewHTTPServer(handler http.Handler, baseContext func(net.Listener) context.Context) *HTTPServer {
	return &HTTPServer{
		handler:     handler,
		baseContext: baseContext,
		done:        make(chan struct{}),
	}
}

// OnShutdown registers f to run when the server is shut down or killed.
// Hijacked connections such as websockets are not closed by http.Server
// itself, so their owners should register here. f may run more than once.
func (s *HTTPServer) OnShutdown(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = append(s.onShutdown, f)
	if s.server != nil {
		s.server.RegisterOnShutdown(f)
	}
}

func (s *HTTPServer) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("server already started on %s", s.server.Addr)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		BaseContext:       s.baseContext,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, f := range s.onShutdown {
		s.server.RegisterOnShutdown(f)
	}
	srv := s.server
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
	return nil
}

func (s *HTTPServer) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *HTTPServer) Kill() error {
	s.mu.Lock()
	srv := s.server
	hooks := append([]func(){}, s.onShutdown...)
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Close()
	for _, f := range hooks {
		f()
	}
	return err
}
