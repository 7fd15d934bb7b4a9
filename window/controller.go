package window

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ReadyFunc blocks until the page server accepts connections.
type ReadyFunc func(ctx context.Context) error

// Controller owns one Browser window. It loads the page only once the server
// is ready and reports when the user closes the window.
type Controller struct {
	browser Browser
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	loadedURL string
	visible   bool
	ran       bool
	onShow    []func()
	onClose   []func()

	closed    chan struct{}
	closeOnce sync.Once
	destroy   sync.Once
}

// NewController applies opts to browser and shows a blank page in the
// background color.
func NewController(browser Browser, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		browser: browser,
		opts:    opts,
		logger:  opts.Logger.With("component", "Window"),
		closed:  make(chan struct{}),
	}
	browser.SetTitle(opts.Title)
	browser.SetSize(opts.Width, opts.Height)
	browser.Navigate(placeholderURL(opts.BackgroundColor))
	return c
}

// OnShow registers f to run on the window thread once the loop is running.
func (c *Controller) OnShow(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onShow = append(c.onShow, f)
}

// OnClose registers f to run after the window has closed.
func (c *Controller) OnClose(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, f)
}

// Load waits for ready and then navigates to url. Nothing is loaded if ready
// fails.
func (c *Controller) Load(ctx context.Context, ready ReadyFunc, url string) error {
	if err := ready(ctx); err != nil {
		c.logger.Error("Server not ready, page not loaded", "url", url, "error", err)
		return err
	}
	c.mu.Lock()
	c.loadedURL = url
	c.mu.Unlock()
	c.logger.Info("Loading page", "url", url)
	c.browser.Navigate(url)
	return nil
}

// Run shows the window and blocks until it is closed. It returns the
// browser's exit status, which is 0 unless the backend reports one.
func (c *Controller) Run() (int, error) {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return 0, fmt.Errorf("window already ran")
	}
	c.ran = true
	c.mu.Unlock()

	c.browser.Dispatch(func() {
		c.mu.Lock()
		c.visible = true
		hooks := append([]func(){}, c.onShow...)
		c.mu.Unlock()
		for _, f := range hooks {
			f()
		}
	})
	c.browser.Run()

	c.mu.Lock()
	c.visible = false
	hooks := append([]func(){}, c.onClose...)
	c.mu.Unlock()
	c.logger.Info("Window closed")

	c.closeOnce.Do(func() { close(c.closed) })
	for _, f := range hooks {
		f()
	}

	code := 0
	if ec, ok := c.browser.(ExitCoder); ok {
		code = ec.ExitCode()
	}
	return code, nil
}

// RequestClose closes the window from any goroutine.
func (c *Controller) RequestClose() {
	c.logger.Debug("Close requested")
	c.browser.Dispatch(c.browser.Terminate)
}

// Closed is closed once the window loop has returned.
func (c *Controller) Closed() <-chan struct{} {
	return c.closed
}

// Destroy releases the window. It must be called once Run has returned, or
// instead of Run if the page never loaded.
func (c *Controller) Destroy() {
	c.destroy.Do(func() {
		c.closeOnce.Do(func() { close(c.closed) })
		c.browser.Destroy()
	})
}

// LoadedURL returns the URL the page was loaded from, or "" before Load.
func (c *Controller) LoadedURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedURL
}

// Visible reports whether the window loop is running.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}
