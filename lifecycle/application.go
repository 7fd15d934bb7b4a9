package lifecycle

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/tomyedwab/dashview/dash"
)

// Application is implemented by the embedding program. Its layout and
// callbacks are handed to the dash framework as they are.
type Application interface {
	BuildLayout() dash.Component
	BuildCallbacks() []dash.Callback
}

// Titled is an optional Application interface naming the window.
type Titled interface {
	Title() string
}

// Listener observes the lifecycle. OnStarted runs on the window thread once
// the window is shown. OnStopped runs exactly once per Run, on every path,
// with the final exit code.
type Listener interface {
	OnStarted(c *Coordinator)
	OnStopped(c *Coordinator, exitCode int)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Started func(c *Coordinator)
	Stopped func(c *Coordinator, exitCode int)
}

func (l ListenerFuncs) OnStarted(c *Coordinator) {
	if l.Started != nil {
		l.Started(c)
	}
}

func (l ListenerFuncs) OnStopped(c *Coordinator, exitCode int) {
	if l.Stopped != nil {
		l.Stopped(c, exitCode)
	}
}

func applicationName(app Application) string {
	if t, ok := app.(Titled); ok && t.Title() != "" {
		return t.Title()
	}
	typ := reflect.TypeOf(app)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Name() == "" {
		return "Application"
	}
	return typ.Name()
}

// notify calls f, logging instead of propagating a panic.
func notify(logger *slog.Logger, event string, f func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Listener panicked", "event", event, "error", fmt.Sprint(rec))
		}
	}()
	f()
}
