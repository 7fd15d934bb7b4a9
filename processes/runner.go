package processes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	defaultStartupTimeout         = 15 * time.Second
	defaultReadyInterval          = 250 * time.Millisecond
	defaultHealthCheckTimeout     = 1 * time.Second
	defaultGracefulShutdownPeriod = 5 * time.Second
	// How long to wait for the server to exit after Kill.
	killWaitPeriod = 2 * time.Second
)

// RunnerConfig holds configuration options for a Runner.
type RunnerConfig struct {
	Server                 Server
	Host                   string        // Optional, defaults to DefaultHost
	Port                   int           // Port to bind, usually from PortManager.AllocatePort
	HealthChecker          HealthChecker // Optional, defaults to HTTPHealthChecker
	Logger                 *slog.Logger  // Optional, defaults to slog.Default()
	StartupTimeout         time.Duration // Optional, defaults to 15s
	ReadyInterval          time.Duration // Optional, defaults to 250ms
	HealthCheckTimeout     time.Duration // Optional, for default HTTPHealthChecker, defaults to 1s
	GracefulShutdownPeriod time.Duration // Optional, defaults to 5s
}

// Runner owns the embedded server: it starts it on a background goroutine,
// waits for readiness and stops it within a bounded grace period.
type Runner struct {
	server        Server
	host          string
	port          int
	healthChecker HealthChecker
	logger        *slog.Logger

	startupTimeout         time.Duration
	readyInterval          time.Duration
	gracefulShutdownPeriod time.Duration

	mu       sync.Mutex
	state    ServerState
	err      error
	stopping bool
	done     chan struct{}
}

// NewRunner creates a Runner. The server is not started until Start is called.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Server == nil {
		return nil, fmt.Errorf("Server is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", config.Port)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := config.Host
	if host == "" {
		host = DefaultHost
	}

	healthChecker := config.HealthChecker
	if healthChecker == nil {
		hcTimeout := config.HealthCheckTimeout
		if hcTimeout == 0 {
			hcTimeout = defaultHealthCheckTimeout
		}
		healthChecker = NewHTTPHealthChecker(hcTimeout)
	}

	startupTimeout := config.StartupTimeout
	if startupTimeout == 0 {
		startupTimeout = defaultStartupTimeout
	}
	readyInterval := config.ReadyInterval
	if readyInterval == 0 {
		readyInterval = defaultReadyInterval
	}
	gracefulShutdown := config.GracefulShutdownPeriod
	if gracefulShutdown == 0 {
		gracefulShutdown = defaultGracefulShutdownPeriod
	}

	return &Runner{
		server:                 config.Server,
		host:                   host,
		port:                   config.Port,
		healthChecker:          healthChecker,
		logger:                 logger.With("component", "Runner", "port", config.Port),
		startupTimeout:         startupTimeout,
		readyInterval:          readyInterval,
		gracefulShutdownPeriod: gracefulShutdown,
		state:                  StateIdle,
		done:                   make(chan struct{}),
	}, nil
}

// Port returns the port the server is bound to.
func (r *Runner) Port() int {
	return r.port
}

// Addr returns host:port of the server.
func (r *Runner) Addr() string {
	return net.JoinHostPort(r.host, strconv.Itoa(r.port))
}

// URL returns the loopback URL of the server's root page.
func (r *Runner) URL() string {
	return "http://" + r.Addr() + "/"
}

// GracefulShutdownPeriod returns how long Stop waits before killing the server.
func (r *Runner) GracefulShutdownPeriod() time.Duration {
	return r.gracefulShutdownPeriod
}

// State returns the current server state thread-safely.
func (r *Runner) State() ServerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the terminal error of the server, if any.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the server has terminated.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) setState(state ServerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// Start launches the server and returns immediately.
// A bind or launch failure is returned as a ServerStartFailure.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("runner already started (state %s)", state)
	}
	r.state = StateStarting
	r.mu.Unlock()

	r.logger.Debug("Starting server", "addr", r.Addr())
	if err := r.server.Start(r.Addr()); err != nil {
		startErr := NewError(ErrorTypeServerStartFailure, fmt.Sprintf("failed to start server on %s", r.Addr()), err)
		r.mu.Lock()
		r.state = StateFailed
		r.err = startErr
		r.mu.Unlock()
		close(r.done)
		r.logger.Error("Server failed to start", "error", err)
		return startErr
	}

	go r.wait()
	return nil
}

// wait runs on the background goroutine and records how the server ended.
func (r *Runner) wait() {
	exitErr := r.server.Wait()

	r.mu.Lock()
	switch {
	case r.stopping:
		if r.err == nil && exitErr != nil {
			r.logger.Info("Server exited with error after stop request", "error", exitErr)
		}
		if r.state != StateFailed {
			r.state = StateStopped
		}
	case r.state == StateStarting:
		r.state = StateFailed
		r.err = NewError(ErrorTypeServerStartFailure, "server terminated during startup", exitErr)
	default:
		r.state = StateFailed
		r.err = NewError(ErrorTypeServerCrash, "server terminated unexpectedly", exitErr)
	}
	err := r.err
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("Server terminated", "error", err)
	} else {
		r.logger.Debug("Server terminated")
	}
	close(r.done)
}

// WaitReady polls the health endpoint until it succeeds, the server exits,
// the startup timeout elapses, or ctx is done. Any failure stops the server
// and is returned as a ServerStartFailure.
func (r *Runner) WaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.startupTimeout)
	defer cancel()

	baseURL := "http://" + r.Addr()
	ticker := time.NewTicker(r.readyInterval)
	defer ticker.Stop()

	for {
		err := r.healthChecker.Check(ctx, baseURL)
		if err == nil {
			r.mu.Lock()
			if r.state == StateStarting {
				r.state = StateRunning
			}
			r.mu.Unlock()
			r.logger.Debug("Server is ready")
			return nil
		}
		r.logger.Warn("Server is not ready, retrying", "retryIn", r.readyInterval, "error", err)

		select {
		case <-r.done:
			if serverErr := r.Err(); serverErr != nil {
				return serverErr
			}
			return NewError(ErrorTypeServerStartFailure, "server terminated during startup", nil)
		case <-ctx.Done():
			r.logger.Error("Server health check timed out", "timeout", r.startupTimeout)
			stopErr := r.Stop()
			if stopErr != nil {
				r.logger.Warn("Failed to stop server after readiness timeout", "error", stopErr)
			}
			return NewError(ErrorTypeServerStartFailure,
				fmt.Sprintf("server did not become ready within %s", r.startupTimeout), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop asks the server to terminate and blocks until it does. If the server
// has not exited after the grace period it is killed and a ShutdownTimeout is
// returned. Stop returns nil for a server that already terminated.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.state == StateIdle {
		r.state = StateStopped
		r.mu.Unlock()
		return nil
	}
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
	}
	if r.stopping {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.stopping = true
	r.state = StateStopping
	r.mu.Unlock()

	r.logger.Info("Stopping server", "gracePeriod", r.gracefulShutdownPeriod)

	ctx, cancel := context.WithTimeout(context.Background(), r.gracefulShutdownPeriod)
	defer cancel()

	shutdownErr := r.server.Shutdown(ctx)
	if shutdownErr == nil {
		select {
		case <-r.done:
			r.logger.Info("Server stopped gracefully")
			return nil
		case <-ctx.Done():
			shutdownErr = ctx.Err()
		}
	}

	if !errors.Is(shutdownErr, context.DeadlineExceeded) {
		r.logger.Warn("Server shutdown returned an error, killing", "error", shutdownErr)
	} else {
		r.logger.Warn("Server did not stop within grace period, killing")
	}

	if err := r.server.Kill(); err != nil {
		r.logger.Error("Failed to kill server", "error", err)
	}

	timeoutErr := NewError(ErrorTypeShutdownTimeout,
		fmt.Sprintf("server did not stop within %s and was terminated", r.gracefulShutdownPeriod), shutdownErr)
	r.mu.Lock()
	r.err = timeoutErr
	r.state = StateFailed
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-time.After(killWaitPeriod):
		r.logger.Error("Server still alive after kill")
	}
	return timeoutErr
}
