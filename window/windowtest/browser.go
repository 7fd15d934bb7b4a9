// Package windowtest provides an in-memory window.Browser for tests.
package windowtest

import (
	"sync"
)

// Browser records navigation and runs dispatched functions on the goroutine
// that calls Run, like a real GUI loop.
type Browser struct {
	mu        sync.Mutex
	title     string
	width     int
	height    int
	urls      []string
	ran       bool
	destroyed bool
	exitCode  int

	queue     chan func()
	quit      chan struct{}
	quitOnce  sync.Once
	started   chan struct{}
	startOnce sync.Once
}

// New creates a Browser whose loop is not yet running.
func New() *Browser {
	return &Browser{
		queue:   make(chan func(), 128),
		quit:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (b *Browser) SetTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.title = title
}

func (b *Browser) SetSize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
}

func (b *Browser) Navigate(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urls = append(b.urls, url)
}

func (b *Browser) Run() {
	b.mu.Lock()
	b.ran = true
	b.mu.Unlock()
	b.startOnce.Do(func() { close(b.started) })
	for {
		select {
		case f := <-b.queue:
			f()
		case <-b.quit:
			return
		}
	}
}

func (b *Browser) Dispatch(f func()) {
	b.queue <- f
}

func (b *Browser) Terminate() {
	b.quitOnce.Do(func() { close(b.quit) })
}

func (b *Browser) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
}

// Close simulates the user closing the window.
func (b *Browser) Close() {
	b.Terminate()
}

// Started is closed once Run has been called.
func (b *Browser) Started() <-chan struct{} {
	return b.started
}

// SetExitCode sets the status reported through ExitCode.
func (b *Browser) SetExitCode(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exitCode = code
}

func (b *Browser) ExitCode() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exitCode
}

// Title returns the last title set.
func (b *Browser) Title() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.title
}

// Size returns the last size set.
func (b *Browser) Size() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

// URLs returns every URL navigated to, in order.
func (b *Browser) URLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.urls...)
}

// LastURL returns the most recent URL navigated to.
func (b *Browser) LastURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.urls) == 0 {
		return ""
	}
	return b.urls[len(b.urls)-1]
}

// Ran reports whether Run was ever called.
func (b *Browser) Ran() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ran
}

// Destroyed reports whether Destroy was called.
func (b *Browser) Destroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}
