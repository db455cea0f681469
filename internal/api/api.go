// Package api is the boundary to the service-request API: the request
// snapshot, technician profiles, status transitions, and conversation
// messages.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/phase"
)

// Client is the set of endpoints the tracking engine consumes. The session
// that authenticates these calls is owned by the implementation.
type Client interface {
	// GetRequest fetches one service-request snapshot. Returns ErrNotFound
	// when no such request exists.
	GetRequest(ctx context.Context, id string) (*ServiceRequest, error)

	// ListRequests fetches the viewer's service requests.
	ListRequests(ctx context.Context) ([]ServiceRequest, error)

	// GetTechnicianProfiles fetches the extended profile(s) of a technician
	// user. Callers use the first element.
	GetTechnicianProfiles(ctx context.Context, userID string) ([]TechnicianProfile, error)

	// UpdateStatus applies a status transition to a request.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error

	// ListMessages fetches the full message list of a conversation.
	ListMessages(ctx context.Context, conversationID string) ([]RawMessage, error)

	// PostMessage posts a message and returns the server-confirmed record.
	PostMessage(ctx context.Context, conversationID string, msg OutgoingMessage) (*RawMessage, error)
}

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("api: not found")

	// ErrTransient matches any TransientError via errors.Is.
	ErrTransient = errors.New("api: transient failure")
)

// TransientError wraps a network or server failure that the next poll may
// recover from.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("api: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is reports ErrTransient as matching.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Location is a geographic point with an optional human-readable address.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Point converts the location for geo calculations.
func (l *Location) Point() *geo.Point {
	if l == nil {
		return nil
	}
	return &geo.Point{Lat: l.Lat, Lng: l.Lng}
}

// TechnicianRef is the technician summary embedded in a request snapshot.
type TechnicianRef struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	LastLocation *Location `json:"last_location,omitempty"`
}

// Pricing holds the request's price fields.
type Pricing struct {
	Estimated float64 `json:"estimated"`
	Final     float64 `json:"final,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// ServiceRequest is a point-in-time snapshot of server-side request state.
// It is replaced wholesale on each poll and never patched.
type ServiceRequest struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title,omitempty"`
	Status             string         `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Location           *Location      `json:"location,omitempty"`
	Technician         *TechnicianRef `json:"technician,omitempty"`
	Pricing            Pricing        `json:"pricing"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
}

// Phase returns the normalized coarse status.
func (r *ServiceRequest) Phase() phase.Status {
	return phase.ParseStatus(r.Status)
}

// Anchor is the timestamp that phase completion and seeded notifications
// are pinned to: completion time when present, otherwise the last update,
// otherwise creation.
func (r *ServiceRequest) Anchor() time.Time {
	if r.CompletedAt != nil && !r.CompletedAt.IsZero() {
		return *r.CompletedAt
	}
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

// TechnicianUserID returns the user id to look the technician profile up
// by, or "" when no technician is assigned.
func (r *ServiceRequest) TechnicianUserID() string {
	if r.Technician == nil {
		return ""
	}
	if r.Technician.UserID != "" {
		return r.Technician.UserID
	}
	return r.Technician.ID
}

// TechnicianProfile is the technician's extended profile.
type TechnicianProfile struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Rating       float64   `json:"rating"`
	Specialties  []string  `json:"specialties,omitempty"`
	Status       string    `json:"status,omitempty"`
	LastLocation *Location `json:"last_location,omitempty"`
}

// StatusUpdate is the body of a status transition.
type StatusUpdate struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Message types.
const (
	MessageText     = "text"
	MessageImage    = "image"
	MessageLocation = "location"
)

// Delivery statuses.
const (
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
)

// RawMessage is a conversation message as the server returns it.
type RawMessage struct {
	ID        string         `json:"id"`
	SenderID  string         `json:"sender_id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Status    string         `json:"status,omitempty"`
}

// OutgoingMessage is the body of a new message.
type OutgoingMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}
