package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/dashview/dash"
	"github.com/tomyedwab/dashview/journal"
	"github.com/tomyedwab/dashview/processes"
	"github.com/tomyedwab/dashview/window"
)

// Config holds configuration options for a Coordinator. Zero values select
// the defaults.
type Config struct {
	Title                  string         // Window and page title, defaults to the Application's name
	Host                   string         // Loopback host, defaults to 127.0.0.1
	MinPort, MaxPort       int            // Port range to probe; zero lets the OS choose
	StartupTimeout         time.Duration  // Readiness wait, defaults to 15s
	ReadyInterval          time.Duration  // Readiness poll interval, defaults to 250ms
	HealthCheckTimeout     time.Duration  // Per-probe timeout, defaults to 1s
	GracefulShutdownPeriod time.Duration  // Defaults to 5s
	Width                  int            // Defaults to 800
	Height                 int            // Defaults to 600
	BackgroundColor        string         // Defaults to #111111
	Debug                  bool           // Enables browser developer tools
	Backend                window.Backend // Used when OpenBrowser is nil, defaults to auto
	Listener               Listener       // Optional
	Journal                *journal.Journal
	Logger                 *slog.Logger // Defaults to slog.Default()

	// OpenBrowser creates the window. Defaults to window.Open with Backend.
	OpenBrowser func(opts window.Options) (window.Browser, error)
	// NewServer wraps the dash app in a Server. Defaults to an in-process HTTPServer.
	NewServer func(app *dash.App) processes.Server
}

// Coordinator runs one Application: it selects a port, starts the server,
// loads the page into a window once the server is ready, and stops the server
// when the window closes.
type Coordinator struct {
	app    Application
	config Config
	name   string
	runID  string
	ports  *processes.PortManager
	logger *slog.Logger

	mu             sync.Mutex
	ran            bool
	state          State
	err            error
	exitCode       int
	browserCode    int
	closeRequested bool
	dashApp        *dash.App
	runner         *processes.Runner
	controller     *window.Controller

	stoppedOnce sync.Once
}

// New creates a Coordinator for app. Nothing is started until Run.
func New(app Application, config Config) (*Coordinator, error) {
	if app == nil {
		return nil, fmt.Errorf("Application is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := config.Host
	if host == "" {
		host = processes.DefaultHost
	}
	config.Host = host

	var ports *processes.PortManager
	if config.MinPort == 0 && config.MaxPort == 0 {
		ports = processes.NewEphemeralPortManager(host)
	} else {
		var err error
		ports, err = processes.NewPortManager(host, config.MinPort, config.MaxPort)
		if err != nil {
			return nil, err
		}
	}

	name := applicationName(app)
	if config.Title == "" {
		config.Title = name
	}
	if config.BackgroundColor == "" {
		config.BackgroundColor = window.DefaultBackgroundColor
	}

	runID := uuid.New().String()
	return &Coordinator{
		app:    app,
		config: config,
		name:   name,
		runID:  runID,
		ports:  ports,
		logger: logger.With("component", "Coordinator", "app", name, "run", runID),
		state:  StateStarting,
	}, nil
}

// Run drives the whole lifecycle and blocks until the window has closed and
// the server has stopped. It must be called on the main thread when the
// browser backend requires it. The returned value is the process exit code.
func (c *Coordinator) Run(ctx context.Context) int {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		c.logger.Error("Run called twice")
		return processes.ExitCodeFailed
	}
	c.ran = true
	c.mu.Unlock()

	c.record(func(j *journal.Journal) error { return j.RecordRun(c.runID, c.name) })
	c.record(func(j *journal.Journal) error { return j.RecordTransition(c.runID, "", StateStarting.String()) })
	c.logger.Info("Starting application")

	return c.finish(c.run(ctx))
}

func (c *Coordinator) run(ctx context.Context) error {
	dashApp, err := dash.New(c.name, c.app.BuildLayout(), c.app.BuildCallbacks(), dash.Options{
		Title:      c.config.Title,
		Background: c.config.BackgroundColor,
		RunID:      c.runID,
		Logger:     c.logger,
	})
	if err != nil {
		return processes.NewError(processes.ErrorTypeServerStartFailure, "invalid application", err)
	}

	port, err := c.ports.AllocatePort()
	if err != nil {
		return err
	}
	defer c.ports.ReleasePort(port)

	runner, err := processes.NewRunner(processes.RunnerConfig{
		Server:                 c.newServer(dashApp),
		Host:                   c.config.Host,
		Port:                   port,
		Logger:                 c.logger,
		StartupTimeout:         c.config.StartupTimeout,
		ReadyInterval:          c.config.ReadyInterval,
		HealthCheckTimeout:     c.config.HealthCheckTimeout,
		GracefulShutdownPeriod: c.config.GracefulShutdownPeriod,
	})
	if err != nil {
		return processes.NewError(processes.ErrorTypeServerStartFailure, "invalid server configuration", err)
	}
	c.mu.Lock()
	c.dashApp = dashApp
	c.runner = runner
	c.mu.Unlock()
	c.record(func(j *journal.Journal) error { return j.SetPort(c.runID, port) })

	if err := runner.Start(); err != nil {
		return err
	}

	opts := window.Options{
		Title:           c.config.Title,
		Width:           c.config.Width,
		Height:          c.config.Height,
		BackgroundColor: c.config.BackgroundColor,
		Debug:           c.config.Debug,
		Logger:          c.logger,
	}
	browser, err := c.openBrowser(opts)
	if err != nil {
		c.stopRunner(runner)
		return fmt.Errorf("failed to open window: %w", err)
	}

	controller := window.NewController(browser, opts)
	controller.OnShow(func() {
		if c.transition(StateRunning) {
			c.logger.Info("Application running", "url", controller.LoadedURL())
			if c.config.Listener != nil {
				notify(c.logger, "started", func() { c.config.Listener.OnStarted(c) })
			}
		}
	})
	c.mu.Lock()
	c.controller = controller
	closeRequested := c.closeRequested
	c.mu.Unlock()

	ready := func(ctx context.Context) error {
		if err := runner.WaitReady(ctx); err != nil {
			return err
		}
		c.transition(StateReady)
		return nil
	}
	if err := controller.Load(ctx, ready, runner.URL()); err != nil {
		controller.Destroy()
		c.stopRunner(runner)
		return err
	}
	if closeRequested {
		controller.RequestClose()
	}

	windowDone := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		c.watch(ctx, runner, controller, windowDone)
	}()

	browserCode, runErr := controller.Run()
	close(windowDone)
	<-watcherDone

	c.transition(StateStopping)
	stopErr := runner.Stop()
	controller.Destroy()

	if serverErr := runner.Err(); processes.IsServerCrash(serverErr) {
		return serverErr
	}
	if stopErr != nil {
		return stopErr
	}
	if runErr != nil {
		return runErr
	}
	c.mu.Lock()
	c.browserCode = browserCode
	c.mu.Unlock()
	return nil
}

// watch closes the window if the server dies or ctx is cancelled while the
// window is open.
func (c *Coordinator) watch(ctx context.Context, runner *processes.Runner, controller *window.Controller, windowDone <-chan struct{}) {
	select {
	case <-runner.Done():
		if err := runner.Err(); processes.IsServerCrash(err) {
			c.logger.Error("Server crashed, closing window", "error", err)
			controller.RequestClose()
		}
	case <-ctx.Done():
		c.logger.Info("Context cancelled, closing window")
		controller.RequestClose()
	case <-windowDone:
	}
}

func (c *Coordinator) stopRunner(runner *processes.Runner) {
	c.transition(StateStopping)
	if err := runner.Stop(); err != nil {
		c.logger.Warn("Failed to stop server", "error", err)
	}
}

// finish records the outcome and notifies the listener.
func (c *Coordinator) finish(err error) int {
	code := processes.ExitCode(err)
	c.mu.Lock()
	if err == nil {
		code = c.browserCode
	}
	c.err = err
	c.exitCode = code
	c.mu.Unlock()

	switch {
	case err == nil:
		c.logger.Info("Application stopped", "exitCode", code)
	case processes.IsShutdownTimeout(err):
		c.logger.Warn("Application stopped after forced server termination", "exitCode", code, "error", err)
	default:
		c.logger.Error("Application failed", "exitCode", code, "error", err)
	}

	c.transition(StateStopped)
	c.record(func(j *journal.Journal) error { return j.FinishRun(c.runID, code, err) })
	c.stoppedOnce.Do(func() {
		if c.config.Listener != nil {
			notify(c.logger, "stopped", func() { c.config.Listener.OnStopped(c, code) })
		}
	})
	return code
}

// transition moves to state if it is ahead of the current one.
func (c *Coordinator) transition(state State) bool {
	c.mu.Lock()
	from := c.state
	if state <= from {
		c.mu.Unlock()
		return false
	}
	c.state = state
	c.mu.Unlock()

	c.logger.Debug("State changed", "from", from, "to", state)
	c.record(func(j *journal.Journal) error { return j.RecordTransition(c.runID, from.String(), state.String()) })
	return true
}

func (c *Coordinator) record(f func(j *journal.Journal) error) {
	if c.config.Journal == nil {
		return
	}
	if err := f(c.config.Journal); err != nil {
		c.logger.Warn("Failed to write journal", "error", err)
	}
}

func (c *Coordinator) openBrowser(opts window.Options) (window.Browser, error) {
	if c.config.OpenBrowser != nil {
		return c.config.OpenBrowser(opts)
	}
	return window.Open(c.config.Backend, opts)
}

func (c *Coordinator) newServer(app *dash.App) processes.Server {
	if c.config.NewServer != nil {
		return c.config.NewServer(app)
	}
	srv := processes.NewHTTPServer(app.Handler(), app.BaseContext)
	srv.OnShutdown(app.Close)
	return srv
}

// RequestClose closes the window as if the user had, from any goroutine.
// A request made before the window exists is applied once it does.
func (c *Coordinator) RequestClose() {
	c.mu.Lock()
	c.closeRequested = true
	controller := c.controller
	state := c.state
	c.mu.Unlock()
	if controller != nil && state < StateStopping {
		controller.RequestClose()
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExitCode returns the final exit code once Run has returned.
func (c *Coordinator) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Err returns the error that ended the run, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// RunID identifies this run in logs and the journal.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Name returns the application name.
func (c *Coordinator) Name() string {
	return c.name
}

// Port returns the server port, or 0 before one is selected.
func (c *Coordinator) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runner == nil {
		return 0
	}
	return c.runner.Port()
}

// URL returns the loopback URL of the page, or "" before a port is selected.
func (c *Coordinator) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runner == nil {
		return ""
	}
	return c.runner.URL()
}

// LoadedURL returns the URL loaded into the window, or "" if none was.
func (c *Coordinator) LoadedURL() string {
	c.mu.Lock()
	controller := c.controller
	c.mu.Unlock()
	if controller == nil {
		return ""
	}
	return controller.LoadedURL()
}

// Visible reports whether the window is currently shown.
func (c *Coordinator) Visible() bool {
	c.mu.Lock()
	controller := c.controller
	c.mu.Unlock()
	return controller != nil && controller.Visible()
}

// App returns the dash app serving the page, or nil before Run.
func (c *Coordinator) App() *dash.App {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dashApp
}
