package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/config"
	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/location"
	"github.com/zulandar/servicetrack/internal/schedule"
	"github.com/zulandar/servicetrack/internal/tracking"
	"github.com/zulandar/servicetrack/internal/viewserver"
)

type trackOpts struct {
	configPath string
	serve      bool
	port       int
	lat, lng   float64
	label      string
	once       bool
}

func newTrackCmd() *cobra.Command {
	var opts trackOpts

	cmd := &cobra.Command{
		Use:   "track [request-id]",
		Short: "Follow a service request live",
		Long: "Tracks the given service request, or your active one when no id is given, " +
			"printing the technician's position, progress, chat and notifications as they change.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runTrack(cmd, id, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to servicetrack config file")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "expose the session over a local HTTP view server")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "view server port (default from config)")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "your current latitude")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "your current longitude")
	cmd.Flags().StringVar(&opts.label, "label", "", "label for --lat/--lng")
	cmd.Flags().BoolVar(&opts.once, "once", false, "print the first complete view and exit")
	return cmd
}

func runTrack(cmd *cobra.Command, id string, opts trackOpts) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	store, err := openLocationStore(cfg)
	if err != nil {
		return err
	}

	var locator location.Provider = location.Unavailable{}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		p := geo.Point{Lat: opts.lat, Lng: opts.lng}
		if !p.Valid() {
			return fmt.Errorf("invalid location %s", p)
		}
		locator = location.StaticProvider{Fix: location.Fix{Point: p, Label: opts.label}}
	}
	if opts.port <= 0 {
		opts.port = cfg.Server.Port
	}

	sched := schedule.NewCron()
	defer sched.Stop()

	ctx, cancel := signalContext(out)
	defer cancel()

	return trackSession(ctx, out, trackDeps{
		Client:   client,
		ViewerID: client.ViewerID(),
		Sched:    sched,
		Cache:    store,
		Locator:  locator,
		Default:  defaultFix(cfg),
		Tracking: cfg.Tracking,
		Location: cfg.Location,
	}, id, opts)
}

// trackDeps holds the collaborators of a tracking run.
type trackDeps struct {
	Client   api.Client
	ViewerID string
	Sched    schedule.Scheduler
	Cache    location.Cache
	Locator  location.Provider
	Default  location.Fix
	Tracking config.TrackingConfig
	Location config.LocationConfig
}

// trackSession runs a session until ctx is cancelled, or just long enough to
// print one view with opts.once.
func trackSession(ctx context.Context, out io.Writer, deps trackDeps, id string, opts trackOpts) error {
	var hub *viewserver.Hub
	if opts.serve {
		hub = viewserver.NewHub()
	}
	printer := &viewPrinter{out: out, tty: isTerminal(out)}

	session, err := tracking.NewSession(tracking.SessionOpts{
		Client:          deps.Client,
		ViewerID:        deps.ViewerID,
		Scheduler:       deps.Sched,
		Locator:         deps.Locator,
		LocationCache:   deps.Cache,
		DefaultLocation: deps.Default,
		LocationMaxAge:  deps.Location.MaxAge(),
		LocationTimeout: deps.Location.Timeout(),
		SnapshotPoll:    deps.Tracking.SnapshotPoll(),
		ETADecay:        deps.Tracking.ETADecay(),
		ChatPoll:        deps.Tracking.ChatPoll(),
		NotificationCap: deps.Tracking.NotificationCap,
		OnChange: func(v tracking.View) {
			if hub != nil {
				hub.Publish(v)
			}
			if !opts.once {
				printer.Print(v)
			}
		},
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Track(ctx, id); err != nil {
		if opts.once {
			return err
		}
		fmt.Fprintf(out, "warning: %v\n", err)
	}

	if opts.once {
		renderView(out, session.View())
		return nil
	}
	if opts.serve {
		return viewserver.Start(ctx, viewserver.StartOpts{
			Tracker: session,
			Hub:     hub,
			Port:    opts.port,
			Out:     out,
		})
	}
	<-ctx.Done()
	return nil
}

// viewPrinter renders views as they change. On a terminal each view replaces
// the previous one; otherwise views are appended, skipping identical ones.
type viewPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	tty  bool
	last string
}

// Print renders v if it differs from the last printed view.
func (p *viewPrinter) Print(v tracking.View) {
	var buf bytes.Buffer
	renderView(&buf, v)
	text := buf.String()

	p.mu.Lock()
	defer p.mu.Unlock()
	if text == p.last {
		return
	}
	if p.tty {
		fmt.Fprint(p.out, clearScreen)
	} else if p.last != "" {
		fmt.Fprintln(p.out, "--")
	}
	p.last = text
	io.WriteString(p.out, text)
}
