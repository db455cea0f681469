package tracking

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/location"
	"github.com/zulandar/servicetrack/internal/notify"
	"github.com/zulandar/servicetrack/internal/phase"
)

// Notification keys for entries derived from the snapshot.
const (
	keyTechnician = "technician"
	keyStatus     = "status"
	keyETA        = "eta"
)

// activeStatuses are the statuses a request can be picked as active by.
var activeStatuses = map[phase.Status]bool{
	phase.StatusInProgress: true,
	phase.StatusConfirmed:  true,
	phase.StatusPending:    true,
}

// pickActive returns the id of the first request still in progress, or of
// the first request when none is, or "" for an empty list.
func pickActive(reqs []api.ServiceRequest) string {
	for _, r := range reqs {
		if activeStatuses[r.Phase()] {
			return r.ID
		}
	}
	if len(reqs) > 0 {
		return reqs[0].ID
	}
	return ""
}

// fingerprint identifies the content of a snapshot. Polls that return an
// identical snapshot are not re-derived.
func fingerprint(r *api.ServiceRequest) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

// projectTechnician builds TechnicianInfo from the snapshot reference and,
// when available, the extended profile. Returns nil when no technician is
// assigned.
func projectTechnician(req *api.ServiceRequest, profile *api.TechnicianProfile) *TechnicianInfo {
	if req.Technician == nil && profile == nil {
		return nil
	}
	info := &TechnicianInfo{}
	if ref := req.Technician; ref != nil {
		info.ID = ref.ID
		info.Name = ref.Name
		info.Phone = ref.Phone
		info.Location = ref.LastLocation.Point()
	}
	if profile != nil {
		if profile.ID != "" {
			info.ID = profile.ID
		}
		if profile.Name != "" {
			info.Name = profile.Name
		}
		if profile.Phone != "" {
			info.Phone = profile.Phone
		}
		info.AvatarURL = profile.AvatarURL
		info.Rating = profile.Rating
		info.Specialties = append([]string(nil), profile.Specialties...)
		info.Status = profile.Status
		if p := profile.LastLocation.Point(); p != nil {
			info.Location = p
		}
	}
	return info
}

// viewerPoint is the reference point distance is measured to: a real device
// or cached fix, otherwise the job site, otherwise the regional default.
func viewerPoint(viewer location.Fix, req *api.ServiceRequest) *geo.Point {
	if viewer.Valid() && viewer.Source != location.SourceDefault {
		p := viewer.Point
		return &p
	}
	if req != nil && req.Location != nil {
		return req.Location.Point()
	}
	if viewer.Valid() {
		p := viewer.Point
		return &p
	}
	return nil
}

// measure fills distance and a fresh ETA into info.
func measure(info *TechnicianInfo, viewer location.Fix, req *api.ServiceRequest) {
	info.HasDistance, info.HasETA = false, false
	info.DistanceKm, info.ETA = 0, 0
	km, ok := geo.DistanceKm(info.Location, viewerPoint(viewer, req))
	if !ok {
		return
	}
	info.HasDistance = true
	info.DistanceKm = km
	info.HasETA = true
	info.ETA = time.Duration(geo.ETAMinutes(km)) * time.Minute
}

// derivedNotifications builds the entries seeded from a snapshot.
func derivedNotifications(req *api.ServiceRequest, tech *TechnicianInfo) []notify.Notification {
	var out []notify.Notification
	if tech != nil && tech.Name != "" {
		out = append(out, notify.Notification{
			Key:     keyTechnician,
			Type:    notify.TypeTechnicianAssigned,
			Title:   "Technician assigned",
			Message: fmt.Sprintf("%s is assigned to your request.", tech.Name),
		})
	}
	out = append(out, notify.Notification{
		Key:     keyStatus,
		Type:    notify.TypeStatus,
		Title:   "Service status",
		Message: fmt.Sprintf("Current status: %s", req.Phase()),
	})
	if tech != nil && tech.HasETA && !req.Phase().Terminal() {
		out = append(out, notify.Notification{
			Key:     keyETA,
			Type:    notify.TypeETA,
			Title:   "Estimated arrival",
			Message: fmt.Sprintf("Technician arriving in about %d min.", tech.ETAMinutes()),
		})
	}
	return out
}

// statusChange builds the notification pushed when consecutive snapshots
// report different statuses.
func statusChange(from, to phase.Status, at time.Time) notify.Notification {
	return notify.Notification{
		Type:    notify.TypeStatusChange,
		Title:   "Status updated",
		Message: fmt.Sprintf("Status changed from %s to %s.", from, to),
		At:      at,
		Action:  &notify.Action{Label: "View progress", Target: "progress"},
	}
}
