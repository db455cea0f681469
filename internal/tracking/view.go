package tracking

import (
	"math"
	"slices"
	"time"

	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/chat"
	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/location"
	"github.com/zulandar/servicetrack/internal/notify"
	"github.com/zulandar/servicetrack/internal/phase"
)

// State is the session lifecycle state.
type State string

const (
	StateLoading  State = "loading"
	StateTracking State = "tracking"
	StateEmpty    State = "empty"
	StateClosed   State = "closed"
)

// TechnicianInfo is the display projection of the assigned technician.
type TechnicianInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Rating      float64    `json:"rating"`
	Specialties []string   `json:"specialties,omitempty"`
	Status      string     `json:"status,omitempty"`
	Location    *geo.Point `json:"location,omitempty"`

	HasDistance bool          `json:"has_distance"`
	DistanceKm  float64       `json:"distance_km"`
	HasETA      bool          `json:"has_eta"`
	ETA         time.Duration `json:"eta"`
}

// ETAMinutes is the displayed ETA, rounded up to whole minutes.
func (t TechnicianInfo) ETAMinutes() int {
	if !t.HasETA {
		return 0
	}
	return int(math.Ceil(t.ETA.Minutes()))
}

// DistanceLabel renders the distance for display, or "" when unknown.
func (t TechnicianInfo) DistanceLabel() string {
	if !t.HasDistance {
		return ""
	}
	return geo.FormatDistance(t.DistanceKm)
}

// View is the consistent snapshot of everything the display layer renders.
// Values returned by Session.View are deep copies.
type View struct {
	State         State                 `json:"state"`
	RequestID     string                `json:"request_id,omitempty"`
	Request       *api.ServiceRequest   `json:"request,omitempty"`
	Technician    *TechnicianInfo       `json:"technician,omitempty"`
	Progress      phase.Progress        `json:"progress"`
	Viewer        location.Fix          `json:"viewer"`
	Messages      []chat.Message        `json:"messages"`
	Unread        int                   `json:"unread"`
	Notifications []notify.Notification `json:"notifications"`
	Notice        string                `json:"notice,omitempty"`
	EmptyMessage  string                `json:"empty_message,omitempty"`
	StaleDiscards int                   `json:"stale_discards"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func cloneRequest(r *api.ServiceRequest) *api.ServiceRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.Location != nil {
		l := *r.Location
		out.Location = &l
	}
	if r.Technician != nil {
		tech := *r.Technician
		if tech.LastLocation != nil {
			l := *tech.LastLocation
			tech.LastLocation = &l
		}
		out.Technician = &tech
	}
	return &out
}

func cloneTechnician(t *TechnicianInfo) *TechnicianInfo {
	if t == nil {
		return nil
	}
	out := *t
	out.Specialties = slices.Clone(t.Specialties)
	if t.Location != nil {
		p := *t.Location
		out.Location = &p
	}
	return &out
}

func cloneProgress(p phase.Progress) phase.Progress {
	for i := range p.Phases {
		if p.Phases[i].CompletedAt != nil {
			t := *p.Phases[i].CompletedAt
			p.Phases[i].CompletedAt = &t
		}
	}
	return p
}
