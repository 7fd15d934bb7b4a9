package lifecycle

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/dashview/dash"
	"github.com/tomyedwab/dashview/journal"
	"github.com/tomyedwab/dashview/processes"
	"github.com/tomyedwab/dashview/window"
	"github.com/tomyedwab/dashview/window/windowtest"
)

type greeterApp struct{}

func (greeterApp) BuildLayout() dash.Component {
	return dash.Div(dash.TextInput("name", "world"), dash.P("").WithID("greeting"))
}

func (greeterApp) BuildCallbacks() []dash.Callback {
	return []dash.Callback{
		dash.NewCallback(dash.NewOutput("greeting", "children"), dash.NewInput("name", "value"),
			func(ctx context.Context, value any) (any, error) {
				return "Hello, " + value.(string), nil
			}),
	}
}

type titledApp struct{ greeterApp }

func (titledApp) Title() string { return "Greetings" }

// recordingListener counts notifications and closes the window once started.
type recordingListener struct {
	mu          sync.Mutex
	started     int
	stopped     int
	exitCode    int
	onStarted   func(c *Coordinator)
	startedAt   State
	loadedURL   string
	port        int
	wasVisible  bool
	closeOnShow bool
}

func (l *recordingListener) OnStarted(c *Coordinator) {
	l.mu.Lock()
	l.started++
	l.startedAt = c.State()
	l.loadedURL = c.LoadedURL()
	l.port = c.Port()
	l.wasVisible = c.Visible()
	l.mu.Unlock()
	if l.onStarted != nil {
		l.onStarted(c)
	}
	if l.closeOnShow {
		c.RequestClose()
	}
}

func (l *recordingListener) OnStopped(c *Coordinator, exitCode int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped++
	l.exitCode = exitCode
}

// stubbornServer never finishes a graceful shutdown.
type stubbornServer struct {
	*processes.HTTPServer
}

func (s *stubbornServer) Shutdown(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// crashingServer exits with an error when crash is closed.
type crashingServer struct {
	*processes.HTTPServer
	crash chan struct{}
}

func (s *crashingServer) Wait() error {
	exited := make(chan error, 1)
	go func() { exited <- s.HTTPServer.Wait() }()
	select {
	case err := <-exited:
		return err
	case <-s.crash:
		s.HTTPServer.Kill()
		return errors.New("boom")
	}
}

// occupiedServer binds a fixed address regardless of the one it is given.
type occupiedServer struct {
	*processes.HTTPServer
	addr string
}

func (s *occupiedServer) Start(string) error {
	return s.HTTPServer.Start(s.addr)
}

func httpServer(app *dash.App) *processes.HTTPServer {
	srv := processes.NewHTTPServer(app.Handler(), app.BaseContext)
	srv.OnShutdown(app.Close)
	return srv
}

type testEnv struct {
	browser *windowtest.Browser
	opened  int
	config  Config
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{browser: windowtest.New()}
	env.config = Config{
		StartupTimeout:         2 * time.Second,
		ReadyInterval:          20 * time.Millisecond,
		GracefulShutdownPeriod: 300 * time.Millisecond,
		OpenBrowser: func(opts window.Options) (window.Browser, error) {
			env.opened++
			return env.browser, nil
		},
	}
	return env
}

func (env *testEnv) run(t *testing.T, app Application) (*Coordinator, int) {
	t.Helper()
	c, err := New(app, env.config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	result := make(chan int, 1)
	go func() { result <- c.Run(context.Background()) }()
	select {
	case code := <-result:
		return c, code
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil, 0
	}
}

func TestReadyServerReachesRunning(t *testing.T) {
	env := newTestEnv(t)
	listener := &recordingListener{closeOnShow: true}
	env.config.Listener = listener

	start := time.Now()
	listener.onStarted = func(c *Coordinator) {
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Took %v to reach Running", elapsed)
		}
	}
	c, code := env.run(t, greeterApp{})

	if code != processes.ExitCodeOK {
		t.Fatalf("Expected exit code 0, got %d (err %v)", code, c.Err())
	}
	if c.State() != StateStopped {
		t.Errorf("Expected Stopped, got %s", c.State())
	}
	if listener.started != 1 || listener.stopped != 1 || listener.exitCode != 0 {
		t.Errorf("Unexpected notifications: %+v", listener)
	}
	if listener.startedAt != StateRunning || !listener.wasVisible {
		t.Errorf("Expected visible Running window when started, got %s visible=%v", listener.startedAt, listener.wasVisible)
	}

	u, err := url.Parse(listener.loadedURL)
	if err != nil {
		t.Fatalf("Bad loaded URL %q: %v", listener.loadedURL, err)
	}
	if u.Port() != strconv.Itoa(listener.port) || u.Hostname() != processes.DefaultHost || u.Path != "/" {
		t.Errorf("Loaded URL %q does not match server port %d", listener.loadedURL, listener.port)
	}
	if env.browser.LastURL() != listener.loadedURL {
		t.Errorf("Browser shows %q, expected %q", env.browser.LastURL(), listener.loadedURL)
	}
	if !env.browser.Destroyed() || c.Visible() {
		t.Error("Expected window to be destroyed after run")
	}

	// The server must be gone with the window.
	if _, err := http.Get(c.URL() + "health"); err == nil {
		t.Error("Server still answering after window closed")
	}
}

func TestTitleDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.config.Listener = &recordingListener{closeOnShow: true}
	c, _ := env.run(t, titledApp{})
	if c.Name() != "Greetings" || env.browser.Title() != "Greetings" {
		t.Errorf("Expected title from Titled, got %q / %q", c.Name(), env.browser.Title())
	}

	env = newTestEnv(t)
	env.config.Listener = &recordingListener{closeOnShow: true}
	c, _ = env.run(t, &greeterApp{})
	if c.Name() != "greeterApp" {
		t.Errorf("Expected type name, got %q", c.Name())
	}
}

func TestBindFailureExitsBeforeWindow(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to occupy a port: %v", err)
	}
	defer occupied.Close()

	env := newTestEnv(t)
	listener := &recordingListener{}
	env.config.Listener = listener
	env.config.NewServer = func(app *dash.App) processes.Server {
		return &occupiedServer{HTTPServer: httpServer(app), addr: occupied.Addr().String()}
	}
	c, code := env.run(t, greeterApp{})

	if code == processes.ExitCodeOK {
		t.Fatal("Expected non-zero exit code")
	}
	if !processes.IsServerStartFailure(c.Err()) {
		t.Errorf("Expected ServerStartFailure, got %v", c.Err())
	}
	if env.opened != 0 || env.browser.Ran() {
		t.Error("Window should not be shown")
	}
	if listener.started != 0 || listener.stopped != 1 || listener.exitCode != code {
		t.Errorf("Unexpected notifications: %+v", listener)
	}
	if c.State() != StateStopped {
		t.Errorf("Expected Stopped, got %s", c.State())
	}
}

func TestPortRangeExhausted(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to occupy a port: %v", err)
	}
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	env := newTestEnv(t)
	env.config.MinPort, env.config.MaxPort = port, port
	c, code := env.run(t, greeterApp{})

	if code != processes.ExitCodeFailed || !processes.IsPortUnavailable(c.Err()) {
		t.Errorf("Expected PortUnavailable with exit 1, got %d %v", code, c.Err())
	}
	if env.opened != 0 {
		t.Error("Window should not be opened")
	}
}

func TestReadinessTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.config.StartupTimeout = 200 * time.Millisecond
	env.config.NewServer = func(app *dash.App) processes.Server {
		return processes.NewHTTPServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}), nil)
	}
	c, code := env.run(t, greeterApp{})

	if code != processes.ExitCodeFailed || !processes.IsServerStartFailure(c.Err()) {
		t.Errorf("Expected ServerStartFailure with exit 1, got %d %v", code, c.Err())
	}
	if env.browser.Ran() || c.LoadedURL() != "" {
		t.Error("Page should not be loaded when the server never became ready")
	}
	if !env.browser.Destroyed() {
		t.Error("Expected window to be destroyed")
	}
}

func TestServerIgnoringStopIsKilled(t *testing.T) {
	env := newTestEnv(t)
	env.config.Listener = &recordingListener{closeOnShow: true}
	env.config.NewServer = func(app *dash.App) processes.Server {
		return &stubbornServer{HTTPServer: httpServer(app)}
	}

	var closedAt time.Time
	env.config.Listener.(*recordingListener).onStarted = func(c *Coordinator) {
		closedAt = time.Now()
	}
	c, code := env.run(t, greeterApp{})
	elapsed := time.Since(closedAt)

	if code != processes.ExitCodeForced {
		t.Fatalf("Expected exit code %d, got %d (err %v)", processes.ExitCodeForced, code, c.Err())
	}
	if !processes.IsShutdownTimeout(c.Err()) {
		t.Errorf("Expected ShutdownTimeout, got %v", c.Err())
	}
	if c.State() != StateStopped {
		t.Errorf("Expected Stopped, got %s", c.State())
	}
	if elapsed > env.config.GracefulShutdownPeriod+2*time.Second {
		t.Errorf("Shutdown took %v", elapsed)
	}
}

func TestServerCrashClosesWindow(t *testing.T) {
	env := newTestEnv(t)
	crash := make(chan struct{})
	listener := &recordingListener{onStarted: func(c *Coordinator) { close(crash) }}
	env.config.Listener = listener
	env.config.NewServer = func(app *dash.App) processes.Server {
		return &crashingServer{HTTPServer: httpServer(app), crash: crash}
	}
	c, code := env.run(t, greeterApp{})

	if code != processes.ExitCodeFailed || !processes.IsServerCrash(c.Err()) {
		t.Errorf("Expected ServerCrash with exit 1, got %d %v", code, c.Err())
	}
	if listener.stopped != 1 {
		t.Errorf("Expected one OnStopped, got %d", listener.stopped)
	}
	if !env.browser.Destroyed() {
		t.Error("Expected window to be closed after crash")
	}
}

func TestBrowserExitCodeKept(t *testing.T) {
	env := newTestEnv(t)
	env.browser.SetExitCode(4)
	env.config.Listener = &recordingListener{closeOnShow: true}
	_, code := env.run(t, greeterApp{})
	if code != 4 {
		t.Errorf("Expected browser exit code 4, got %d", code)
	}
}

func TestRequestCloseBeforeRun(t *testing.T) {
	env := newTestEnv(t)
	c, err := New(greeterApp{}, env.config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.RequestClose()
	if code := c.Run(context.Background()); code != processes.ExitCodeOK {
		t.Errorf("Expected exit code 0, got %d (err %v)", code, c.Err())
	}
	if !env.browser.Ran() {
		t.Error("Expected window to have been shown")
	}
	if code := c.Run(context.Background()); code != processes.ExitCodeFailed {
		t.Errorf("Expected second Run to fail, got %d", code)
	}
}

func TestContextCancelClosesWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.config.Listener = &recordingListener{onStarted: func(c *Coordinator) { cancel() }}

	c, err := New(greeterApp{}, env.config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if code := c.Run(ctx); code != processes.ExitCodeOK {
		t.Errorf("Expected exit code 0, got %d (err %v)", code, c.Err())
	}
}

type panickyListener struct{}

func (panickyListener) OnStarted(c *Coordinator) {
	c.RequestClose()
	panic("started")
}

func (panickyListener) OnStopped(c *Coordinator, exitCode int) { panic("stopped") }

func TestListenerPanicIsRecovered(t *testing.T) {
	env := newTestEnv(t)
	env.config.Listener = panickyListener{}
	_, code := env.run(t, greeterApp{})
	if code != processes.ExitCodeOK {
		t.Errorf("Expected exit code 0, got %d", code)
	}
}

func TestJournalRecordsRun(t *testing.T) {
	db := sqlx.MustConnect("sqlite3", path.Join(t.TempDir(), "journal.db"))
	defer db.Close()
	j, err := journal.New(db)
	if err != nil {
		t.Fatalf("journal.New failed: %v", err)
	}

	env := newTestEnv(t)
	env.config.Journal = j
	env.config.Listener = &recordingListener{closeOnShow: true}
	c, code := env.run(t, greeterApp{})

	run, err := j.GetRun(c.RunID())
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !run.Finished() || run.ExitCode.Int64 != int64(code) || run.Port == 0 {
		t.Errorf("Unexpected run %+v", run)
	}

	transitions, err := j.Transitions(c.RunID())
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	want := []string{"Starting", "Ready", "Running", "Stopping", "Stopped"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected %d transitions, got %+v", len(want), transitions)
	}
	for i, tr := range transitions {
		if tr.ToState != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], tr.ToState)
		}
	}
}

func TestTransitionsOnlyMoveForward(t *testing.T) {
	c, err := New(greeterApp{}, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !c.transition(StateRunning) {
		t.Fatal("Expected Starting -> Running to succeed")
	}
	if c.transition(StateReady) || c.transition(StateRunning) {
		t.Error("Expected backward and repeated transitions to be refused")
	}
	if c.State() != StateRunning {
		t.Errorf("Expected Running, got %s", c.State())
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("Expected error for nil Application")
	}
	if _, err := New(greeterApp{}, Config{MinPort: 9000, MaxPort: 8000}); err == nil {
		t.Error("Expected error for inverted port range")
	}
}
