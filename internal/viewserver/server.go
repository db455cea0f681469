// Package viewserver exposes a tracking session over local HTTP: the view
// model as JSON, the chat and cancel actions, and a server-sent event stream
// of view updates.
package viewserver

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/servicetrack/internal/chat"
	"github.com/zulandar/servicetrack/internal/tracking"
)

// DefaultPort is used when StartOpts.Port is unset.
const DefaultPort = 8080

// Tracker is the subset of tracking.Session the server drives.
type Tracker interface {
	View() tracking.View
	Refresh(ctx context.Context) error
	Cancel(ctx context.Context, reason string) error
	Send(ctx context.Context, text string) (chat.Message, error)
	Dismiss(id string) bool
	DismissAll()
}

// StartOpts holds configuration for the view server.
type StartOpts struct {
	Tracker Tracker
	Hub     *Hub // view updates for /api/events; optional
	Port    int
	Out     io.Writer
}

// Start launches the view server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Tracker == nil {
		return fmt.Errorf("viewserver: tracker is required")
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts.Tracker, opts.Hub),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Tracking view at http://localhost:%d/api/view\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("viewserver: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine serving t. A nil hub disables live updates
// on /api/events; the stream then carries only the current view.
func NewRouter(t Tracker, hub *Hub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, t, hub)
	return router
}
