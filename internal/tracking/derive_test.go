package tracking

import (
	"testing"
	"time"

	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/location"
	"github.com/zulandar/servicetrack/internal/phase"
)

// --- pickActive tests ---

func TestPickActive(t *testing.T) {
	tests := []struct {
		name     string
		statuses []phase.Status
		want     string
	}{
		{"empty", nil, ""},
		{"first active wins", []phase.Status{phase.StatusCompleted, phase.StatusConfirmed, phase.StatusInProgress}, "r1"},
		{"pending counts", []phase.Status{phase.StatusCancelled, phase.StatusPending}, "r1"},
		{"none active falls back to first", []phase.Status{phase.StatusCompleted, phase.StatusCancelled}, "r0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqs []api.ServiceRequest
			for i, s := range tt.statuses {
				reqs = append(reqs, api.ServiceRequest{ID: "r" + string(rune('0'+i)), Status: string(s)})
			}
			if got := pickActive(reqs); got != tt.want {
				t.Errorf("pickActive = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPickActive_NormalizesStatus(t *testing.T) {
	reqs := []api.ServiceRequest{
		{ID: "a", Status: "COMPLETED"},
		{ID: "b", Status: "In-Progress"},
	}
	if got := pickActive(reqs); got != "b" {
		t.Errorf("pickActive = %q, want b", got)
	}
}

// --- fingerprint tests ---

func TestFingerprint(t *testing.T) {
	a := request("R1", phase.StatusConfirmed, t0)
	b := request("R1", phase.StatusConfirmed, t0)
	if fingerprint(&a) != fingerprint(&b) {
		t.Error("identical snapshots have different fingerprints")
	}
	b.UpdatedAt = t0.Add(time.Second)
	if fingerprint(&a) == fingerprint(&b) {
		t.Error("different snapshots share a fingerprint")
	}
}

// --- viewerPoint tests ---

func TestViewerPoint(t *testing.T) {
	device := location.Fix{Point: geo.Point{Lat: 1, Lng: 1}, Source: location.SourceDevice}
	fallback := location.Fix{Point: geo.Point{Lat: 3, Lng: 3}, Source: location.SourceDefault}
	site := &api.ServiceRequest{Location: &api.Location{Lat: 2, Lng: 2}}
	bare := &api.ServiceRequest{}

	tests := []struct {
		name    string
		viewer  location.Fix
		req     *api.ServiceRequest
		wantLat float64
		wantNil bool
	}{
		{"device fix wins", device, site, 1, false},
		{"job site over regional default", fallback, site, 2, false},
		{"regional default last", fallback, bare, 3, false},
		{"nothing", location.Fix{Point: geo.Point{Lat: 100}}, bare, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := viewerPoint(tt.viewer, tt.req)
			if tt.wantNil {
				if got != nil {
					t.Errorf("viewerPoint = %v, want nil", got)
				}
				return
			}
			if got == nil || got.Lat != tt.wantLat {
				t.Errorf("viewerPoint = %v, want lat %v", got, tt.wantLat)
			}
		})
	}
}

// --- projectTechnician tests ---

func TestProjectTechnician(t *testing.T) {
	t.Run("none assigned", func(t *testing.T) {
		req := request("R1", phase.StatusPending, t0)
		if got := projectTechnician(&req, nil); got != nil {
			t.Errorf("projectTechnician = %+v, want nil", got)
		}
	})

	t.Run("profile overrides reference", func(t *testing.T) {
		req := withTechnician(request("R1", phase.StatusConfirmed, t0), techPos)
		profile := &api.TechnicianProfile{
			Name:         "Asha Rao",
			Rating:       4.5,
			LastLocation: &api.Location{Lat: 12.99, Lng: 77.61},
		}
		got := projectTechnician(&req, profile)
		if got.ID != "t1" || got.Name != "Asha Rao" || got.Rating != 4.5 {
			t.Errorf("projectTechnician = %+v", got)
		}
		if got.Location == nil || got.Location.Lat != 12.99 {
			t.Errorf("Location = %v, want the profile's", got.Location)
		}
	})

	t.Run("profile without location keeps reference", func(t *testing.T) {
		req := withTechnician(request("R1", phase.StatusConfirmed, t0), techPos)
		got := projectTechnician(&req, &api.TechnicianProfile{Name: "Asha Rao"})
		if got.Location == nil || got.Location.Lat != techPos.Lat {
			t.Errorf("Location = %v, want the reference's", got.Location)
		}
	})
}

// --- derivedNotifications tests ---

func TestDerivedNotifications(t *testing.T) {
	tech := &TechnicianInfo{Name: "Asha", HasETA: true, ETA: 7 * time.Minute}

	active := request("R1", phase.StatusConfirmed, t0)
	if got := derivedNotifications(&active, tech); len(got) != 3 {
		t.Errorf("active request: %d entries, want 3", len(got))
	}

	done := request("R1", phase.StatusCompleted, t0)
	got := derivedNotifications(&done, tech)
	if len(got) != 2 {
		t.Fatalf("completed request: %d entries, want 2", len(got))
	}
	for _, n := range got {
		if n.Key == keyETA {
			t.Error("ETA entry for a completed request")
		}
	}

	if got := derivedNotifications(&active, nil); len(got) != 1 || got[0].Key != keyStatus {
		t.Errorf("no technician: %+v, want only the status entry", got)
	}
}

func TestStatusChange(t *testing.T) {
	n := statusChange(phase.StatusPending, phase.StatusConfirmed, t0)
	if n.Message != "Status changed from pending to confirmed." || !n.At.Equal(t0) {
		t.Errorf("statusChange = %+v", n)
	}
	if n.Action == nil || n.Action.Label != "View progress" {
		t.Errorf("Action = %+v", n.Action)
	}
}

// --- TechnicianInfo tests ---

func TestTechnicianInfo_ETAMinutesRoundsUp(t *testing.T) {
	tests := []struct {
		eta  time.Duration
		want int
	}{
		{5 * time.Minute, 5},
		{4*time.Minute + 30*time.Second, 5},
		{30 * time.Second, 1},
		{0, 0},
	}
	for _, tt := range tests {
		info := TechnicianInfo{HasETA: true, ETA: tt.eta}
		if got := info.ETAMinutes(); got != tt.want {
			t.Errorf("ETAMinutes(%v) = %d, want %d", tt.eta, got, tt.want)
		}
	}
	if got := (TechnicianInfo{ETA: time.Minute}).ETAMinutes(); got != 0 {
		t.Errorf("ETAMinutes without ETA = %d, want 0", got)
	}
}
