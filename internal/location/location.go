// Package location tracks the viewer's device location: a cached fix is
// available immediately and a single best-effort request may refine it.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/servicetrack/internal/geo"
)

// Default request limits.
const (
	DefaultMaxAge  = 60 * time.Second
	DefaultTimeout = 10 * time.Second
)

// Source records where a Fix came from.
type Source string

const (
	SourceDefault Source = "default" // configured regional fallback
	SourceCache   Source = "cache"   // durable cache from a previous session
	SourceDevice  Source = "device"  // fresh fix from the provider
)

// Fix is a resolved viewer location.
type Fix struct {
	Point  geo.Point `json:"point"`
	Label  string    `json:"label,omitempty"`
	At     time.Time `json:"at"`
	Source Source    `json:"source"`
}

// Valid reports whether the fix has usable coordinates.
func (f Fix) Valid() bool { return f.Point.Valid() }

// ErrUnavailable is returned by providers that cannot produce a fix.
var ErrUnavailable = errors.New("location: unavailable")

// Request bounds a single geolocation request.
type Request struct {
	MaxAge       time.Duration
	Timeout      time.Duration
	HighAccuracy bool
}

// Provider resolves the device's current location.
type Provider interface {
	Locate(ctx context.Context, req Request) (Fix, error)
}

// Cache persists the last known fix across sessions.
type Cache interface {
	Load() (Fix, bool)
	Save(Fix) error
}

// FuncProvider adapts a function to Provider.
type FuncProvider func(ctx context.Context, req Request) (Fix, error)

// Locate calls f.
func (f FuncProvider) Locate(ctx context.Context, req Request) (Fix, error) {
	return f(ctx, req)
}

// StaticProvider always returns the same fix.
type StaticProvider struct {
	Fix Fix
}

// Locate returns the configured fix, or an error if it has no coordinates.
func (p StaticProvider) Locate(ctx context.Context, req Request) (Fix, error) {
	if !p.Fix.Valid() {
		return Fix{}, fmt.Errorf("location: static: %w", ErrUnavailable)
	}
	fix := p.Fix
	if fix.At.IsZero() {
		fix.At = time.Now()
	}
	return fix, nil
}

// Unavailable is a Provider for hosts without a geolocation source.
type Unavailable struct{}

// Locate always fails with ErrUnavailable.
func (Unavailable) Locate(ctx context.Context, req Request) (Fix, error) {
	return Fix{}, ErrUnavailable
}
