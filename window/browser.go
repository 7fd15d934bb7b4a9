package window

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// ErrBackendUnavailable is returned when a browser backend cannot run on this
// system or build.
var ErrBackendUnavailable = errors.New("browser backend unavailable")

const (
	DefaultTitle           = "Browser Window"
	DefaultWidth           = 800
	DefaultHeight          = 600
	DefaultBackgroundColor = "#111111"
)

// Browser is a desktop window hosting an embedded browser view.
// Run must be called on the thread that created the Browser. Dispatch and
// Terminate may be called from any goroutine.
type Browser interface {
	SetTitle(title string)
	SetSize(width, height int)
	Navigate(url string)
	// Run blocks until the window is closed.
	Run()
	// Dispatch schedules f on the window's thread.
	Dispatch(f func())
	// Terminate makes Run return.
	Terminate()
	Destroy()
}

// ExitCoder is implemented by browsers that report an exit status of their own.
type ExitCoder interface {
	ExitCode() int
}

// Options describes the window.
type Options struct {
	Title           string
	Width           int
	Height          int
	BackgroundColor string
	Debug           bool         // Enables developer tools where supported
	Logger          *slog.Logger // Defaults to slog.Default()
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.BackgroundColor == "" {
		o.BackgroundColor = DefaultBackgroundColor
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// placeholderURL is a blank page in the window's background color, shown
// until the server is ready.
func placeholderURL(color string) string {
	page := fmt.Sprintf(`<html><body style="margin:0;background:%s"></body></html>`, color)
	return "data:text/html," + url.PathEscape(page)
}

// Backend names a Browser implementation.
type Backend string

const (
	BackendAuto    Backend = "auto"
	BackendWebView Backend = "webview"
	BackendLorca   Backend = "lorca"
)

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(name)); b {
	case BackendAuto, BackendWebView, BackendLorca:
		return b, nil
	case "":
		return BackendAuto, nil
	default:
		return "", fmt.Errorf("unknown browser backend %q", name)
	}
}

// Open creates a Browser with the given backend. BackendAuto prefers the
// native webview and falls back to a Chrome app window.
func Open(backend Backend, opts Options) (Browser, error) {
	opts = opts.withDefaults()
	switch backend {
	case BackendWebView:
		return NewWebView(opts)
	case BackendLorca:
		return NewLorca(opts)
	case BackendAuto, "":
		b, err := NewWebView(opts)
		if err == nil {
			return b, nil
		}
		opts.Logger.Info("Native webview unavailable, trying Chrome", "error", err)
		return NewLorca(opts)
	default:
		return nil, fmt.Errorf("unknown browser backend %q", backend)
	}
}
