package dash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey int

// ContextAppKey is the context key under which the serving App is stored.
const ContextAppKey contextKey = iota

const defaultTokenExpiry = 24 * time.Hour

// Options configures an App. All fields are optional.
type Options struct {
	Title      string        // Page title, defaults to the app name
	Background string        // Page background color, defaults to #111111
	Foreground string        // Page text color, defaults to #eeeeee
	PlotlyURL  string        // plotly.js script; "-" disables it
	RunID      string        // Subject of page session tokens
	Logger     *slog.Logger  // Defaults to slog.Default()
	TokenTTL   time.Duration // Session token lifetime, defaults to 24h
}

// App serves one page layout and its callbacks.
type App struct {
	name       string
	title      string
	background string
	foreground string
	plotlyURL  string

	layout    Component
	callbacks map[string]Callback
	order     []string

	tokens *TokenIssuer
	hub    *hub
	logger *slog.Logger
	router chi.Router
}

// New creates an App from a layout and its callbacks.
// Two callbacks may not write the same output.
func New(name string, layout Component, callbacks []Callback, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := opts.Title
	if title == "" {
		title = name
	}
	background := opts.Background
	if background == "" {
		background = "#111111"
	}
	foreground := opts.Foreground
	if foreground == "" {
		foreground = "#eeeeee"
	}
	plotlyURL := opts.PlotlyURL
	switch plotlyURL {
	case "":
		plotlyURL = plotlyScriptURL
	case "-":
		plotlyURL = ""
	}
	ttl := opts.TokenTTL
	if ttl == 0 {
		ttl = defaultTokenExpiry
	}

	tokens, err := NewTokenIssuer(opts.RunID, ttl)
	if err != nil {
		return nil, err
	}

	app := &App{
		name:       name,
		title:      title,
		background: background,
		foreground: foreground,
		plotlyURL:  plotlyURL,
		layout:     layout,
		callbacks:  make(map[string]Callback),
		tokens:     tokens,
		logger:     logger.With("component", "dash", "app", name),
	}
	app.hub = newHub(app.logger)

	outputs := make(map[string]string)
	for _, cb := range callbacks {
		if cb.Func == nil {
			return nil, fmt.Errorf("callback %s has no function", cb.Key())
		}
		if len(cb.Outputs) == 0 || len(cb.Inputs) == 0 {
			return nil, fmt.Errorf("callback %s needs at least one output and one input", cb.Key())
		}
		for _, out := range cb.Outputs {
			if owner, ok := outputs[out.String()]; ok {
				return nil, fmt.Errorf("output %s is already written by callback %s", out, owner)
			}
			outputs[out.String()] = cb.Key()
		}
		app.callbacks[cb.Key()] = cb
		app.order = append(app.order, cb.Key())
	}

	app.router = app.routes()
	return app, nil
}

func (a *App) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", a.handleIndex)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/_dash-layout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, a.logger, a.layout, nil, http.StatusOK)
	})
	r.Get("/_dash-dependencies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, a.logger, a.callbackSpecs(), nil, http.StatusOK)
	})
	r.Get("/_dash-assets/dash.js", a.handleScript)

	r.Group(func(r chi.Router) {
		r.Use(a.tokens.RequireToken)
		r.Post("/_dash-update-component", a.handleUpdate)
		r.Get("/_dash-ws", a.handleWebsocket)
	})
	return r
}

// Name returns the app name.
func (a *App) Name() string {
	return a.name
}

// Handler returns the HTTP handler serving the app.
func (a *App) Handler() http.Handler {
	return a.router
}

// BaseContext makes the App available to callbacks through AppFromContext.
func (a *App) BaseContext(net.Listener) context.Context {
	return context.WithValue(context.Background(), ContextAppKey, a)
}

// AppFromContext returns the App serving the current request, if any.
func AppFromContext(ctx context.Context) *App {
	app, _ := ctx.Value(ContextAppKey).(*App)
	return app
}

// Close disconnects all websocket clients.
func (a *App) Close() {
	a.hub.closeAll()
}

func (a *App) callbackSpecs() []callbackSpec {
	specs := make([]callbackSpec, 0, len(a.order))
	for _, key := range a.order {
		cb := a.callbacks[key]
		specs = append(specs, callbackSpec{Key: key, Outputs: cb.Outputs, Inputs: cb.Inputs})
	}
	return specs
}

// Dispatch runs the callback named by req.Output.
func (a *App) Dispatch(ctx context.Context, req UpdateRequest) UpdateResponse {
	resp := UpdateResponse{RequestID: req.RequestID}
	outputs, err := a.dispatch(ctx, req)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Outputs = outputs
	return resp
}

func (a *App) dispatch(ctx context.Context, req UpdateRequest) (outputs []OutputValue, err error) {
	cb, ok := a.callbacks[req.Output]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCallback, req.Output)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("callback %s panicked: %v", cb.Key(), rec)
		}
		if err != nil {
			a.logger.Warn("Callback failed", "callback", req.Output, "error", err)
		}
	}()
	return cb.invoke(ctx, req)
}

func (a *App) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, a.logger, nil, fmt.Errorf("invalid callback request: %w", err), http.StatusBadRequest)
		return
	}
	outputs, err := a.dispatch(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrUnknownCallback):
			status = http.StatusNotFound
		case errors.Is(err, ErrInputMismatch):
			status = http.StatusBadRequest
		}
		writeJSON(w, r, a.logger, UpdateResponse{RequestID: req.RequestID, Error: err.Error()}, err, status)
		return
	}
	writeJSON(w, r, a.logger, UpdateResponse{RequestID: req.RequestID, Outputs: outputs}, nil, http.StatusOK)
}

// writeJSON writes resp as JSON, or err with status if err is set.
func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, resp any, err error, status int) {
	if err != nil {
		logger.Warn("Request failed", "remote", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "error", err)
		if resp == nil {
			http.Error(w, err.Error(), status)
			return
		}
	}
	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		logger.Error("Failed to encode response", "path", r.URL.Path, "error", marshalErr)
		http.Error(w, marshalErr.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
