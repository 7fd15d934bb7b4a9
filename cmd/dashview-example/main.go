package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tomyedwab/dashview/journal"
	"github.com/tomyedwab/dashview/lifecycle"
	"github.com/tomyedwab/dashview/window"
)

func init() {
	// GUI toolkits must run their event loop on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	backendName := flag.String("backend", "auto", "Browser backend: auto, webview or lorca")
	journalPath := flag.String("journal", "", "Optional path to a SQLite run journal")
	logLevel := flag.String("log-level", "debug", "Log level: debug, info, warn or error")
	debug := flag.Bool("devtools", false, "Enable browser developer tools")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	backend, err := window.ParseBackend(*backendName)
	if err != nil {
		logger.Error("Invalid backend", "error", err)
		os.Exit(2)
	}

	app, err := NewPopulationApp()
	if err != nil {
		logger.Error("Failed to load dataset", "error", err)
		os.Exit(1)
	}

	config := lifecycle.Config{
		Backend: backend,
		Debug:   *debug,
		Logger:  logger,
	}
	if *journalPath != "" {
		j, err := journal.Open(*journalPath)
		if err != nil {
			logger.Error("Failed to open journal", "error", err)
			os.Exit(1)
		}
		config.Journal = j
	}

	coordinator, err := lifecycle.New(app, config)
	if err != nil {
		logger.Error("Failed to create coordinator", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := coordinator.Run(ctx)
	stop()

	logger.Info("Application exited", "app", coordinator.Name(), "exitCode", code)
	// os.Exit skips deferred calls.
	if config.Journal != nil {
		config.Journal.Close()
	}
	os.Exit(code)
}
