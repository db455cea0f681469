package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/config"
	"github.com/zulandar/servicetrack/internal/db"
	"github.com/zulandar/servicetrack/internal/location"
	"golang.org/x/term"
)

const defaultConfigPath = "servicetrack.yaml"

// loadConfig reads .env from the working directory, if present, and then the
// YAML config.
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newAPIClient builds the HTTP client described by cfg.
func newAPIClient(cfg *config.Config) (*api.HTTPClient, error) {
	client, err := api.NewHTTPClient(api.HTTPClientOpts{
		BaseURL:  cfg.API.BaseURL,
		Token:    cfg.API.Token,
		ViewerID: cfg.Viewer.ID,
		Timeout:  cfg.APITimeout(),
	})
	if err != nil {
		return nil, err
	}
	if client.ViewerID() == "" {
		return nil, fmt.Errorf("viewer id unknown: set viewer.id or use a token with a subject claim")
	}
	return client, nil
}

// openLocationStore opens the device-local store and wraps it as the
// location cache.
func openLocationStore(cfg *config.Config) (*location.Store, error) {
	gormDB, err := db.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	return location.NewStore(gormDB)
}

// defaultFix is the configured regional fallback location.
func defaultFix(cfg *config.Config) location.Fix {
	f := location.Fix{Label: cfg.Location.DefaultLabel, Source: location.SourceDefault}
	f.Point.Lat = cfg.Location.DefaultLat
	f.Point.Lng = cfg.Location.DefaultLng
	return f
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
