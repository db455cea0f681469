package location

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Watcher holds the viewer's best known location. The cached or default fix
// is available from construction; Start issues one device request that may
// replace it. Failures are logged and never surfaced.
type Watcher struct {
	provider Provider
	cache    Cache
	req      Request
	onFix    func(Fix)

	mu      sync.Mutex
	current Fix
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatcherOpts holds parameters for creating a Watcher.
type WatcherOpts struct {
	Provider Provider
	Cache    Cache         // optional durable cache
	Default  Fix           // regional fallback when nothing is cached
	MaxAge   time.Duration // defaults to DefaultMaxAge
	Timeout  time.Duration // defaults to DefaultTimeout
	OnFix    func(Fix)     // called after a device fix replaces the current one
}

// NewWatcher creates a Watcher, synchronously loading the cached fix.
func NewWatcher(opts WatcherOpts) (*Watcher, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("location: watcher: provider is required")
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	current := opts.Default
	current.Source = SourceDefault
	if opts.Cache != nil {
		if fix, ok := opts.Cache.Load(); ok {
			current = fix
		}
	}

	return &Watcher{
		provider: opts.Provider,
		cache:    opts.Cache,
		req:      Request{MaxAge: maxAge, Timeout: timeout, HighAccuracy: true},
		onFix:    opts.OnFix,
		current:  current,
		done:     make(chan struct{}),
	}, nil
}

// Current returns the best known fix without blocking.
func (w *Watcher) Current() Fix {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start issues the one-shot device request in the background. Subsequent
// calls are no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	ctx, cancel := context.WithTimeout(ctx, w.req.Timeout)
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		defer cancel()
		w.locate(ctx)
	}()
}

func (w *Watcher) locate(ctx context.Context) {
	fix, err := w.provider.Locate(ctx, w.req)
	if err == nil && !fix.Valid() {
		err = fmt.Errorf("invalid point %s", fix.Point)
	}
	if err != nil {
		log.Printf("location: locate: %v (keeping %s fix)", err, w.Current().Source)
		return
	}
	fix.Source = SourceDevice
	if fix.At.IsZero() {
		fix.At = time.Now()
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.current = fix
	cb := w.onFix
	w.mu.Unlock()

	if w.cache != nil {
		if err := w.cache.Save(fix); err != nil {
			log.Printf("location: cache save: %v", err)
		}
	}
	if cb != nil {
		cb(fix)
	}
}

// Stop cancels an in-flight request. A fix that arrives afterwards is dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
}

// Done is closed when the device request started by Start has finished.
func (w *Watcher) Done() <-chan struct{} { return w.done }
