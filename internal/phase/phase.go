// Package phase derives the five-stage service progress model from the
// coarse status of a service request.
package phase

import (
	"math"
	"strings"
	"time"
)

// Status is the coarse lifecycle state reported by the API.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Count is the fixed number of phases.
const Count = 5

// Phase names, in order.
const (
	Traveling = "Traveling"
	Assessing = "Assessing"
	Working   = "Working"
	Testing   = "Testing"
	Completed = "Completed"
)

// PendingNote is attached to the first phase while a request awaits confirmation.
const PendingNote = "Waiting for technician confirmation."

// Phase is one stage of on-site service execution.
type Phase struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CompletedAt *time.Time `json:"completed_at"`
	Notes       string     `json:"notes,omitempty"`
}

// Done reports whether the phase has a completion timestamp.
func (p Phase) Done() bool { return p.CompletedAt != nil }

var definitions = [Count]Phase{
	{Name: Traveling, Description: "Technician is on the way to your location."},
	{Name: Assessing, Description: "Technician is inspecting the problem."},
	{Name: Working, Description: "Repair work is underway."},
	{Name: Testing, Description: "Verifying the fix works as expected."},
	{Name: Completed, Description: "Service is complete."},
}

// rule is one row of the status table.
type rule struct {
	completed int
	current   int
}

// table maps every known status to its completed-phase count and active
// phase index. Statuses missing from the table fall back to the zero rule.
var table = map[Status]rule{
	StatusPending:    {completed: 0, current: 0},
	StatusConfirmed:  {completed: 0, current: 0},
	StatusInProgress: {completed: 2, current: 2},
	StatusCompleted:  {completed: 5, current: 4},
	StatusCancelled:  {completed: 5, current: 4},
}

// Statuses lists every status the table covers, in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled}
}

// Known reports whether s has an entry in the status table.
func (s Status) Known() bool {
	_, ok := table[s]
	return ok
}

// Terminal reports whether no further progress is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus normalizes raw API status strings ("In-Progress", " PENDING ")
// into a Status. Unknown values are returned normalized but not rejected.
func ParseStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return Status(s)
}

// Input carries the snapshot fields the model depends on.
type Input struct {
	Status       Status
	At           time.Time // update or completion timestamp of the snapshot
	CancelReason string
}

// Progress is the derived phase view for one snapshot.
type Progress struct {
	Phases         [Count]Phase `json:"phases"`
	CompletedCount int          `json:"completed_count"`
	Current        int          `json:"current"`
	Status         Status       `json:"status"`
}

// CurrentPhase returns the active phase.
func (p Progress) CurrentPhase() Phase { return p.Phases[p.Current] }

// CurrentName returns the name of the active phase.
func (p Progress) CurrentName() string { return p.Phases[p.Current].Name }

// Percent is the display progress, rounded to a whole percent.
func (p Progress) Percent() int {
	return int(math.Round(float64(p.CompletedCount) / Count * 100))
}

// Derive builds the phase progression for a snapshot. It never fails:
// unknown statuses yield zero completed phases with the first phase active.
func Derive(in Input) Progress {
	r := table[in.Status]

	var p Progress
	p.Status = in.Status
	p.CompletedCount = r.completed
	p.Current = r.current
	p.Phases = definitions

	at := in.At
	for i := range p.Phases {
		if i < r.completed {
			ts := at
			p.Phases[i].CompletedAt = &ts
		}
	}

	switch in.Status {
	case StatusPending:
		p.Phases[0].Notes = PendingNote
	case StatusCancelled:
		p.Phases[Count-1].Notes = in.CancelReason
	}
	return p
}

// Carry merges next over prev so progress never moves backwards within a
// session: a phase completed in prev keeps its original timestamp even when
// next reports it incomplete, and the completed count never shrinks.
func Carry(prev, next Progress) Progress {
	out := next
	if prev.CompletedCount > out.CompletedCount {
		out.CompletedCount = prev.CompletedCount
	}
	if prev.Current > out.Current {
		out.Current = prev.Current
	}
	for i := range out.Phases {
		if prev.Phases[i].CompletedAt == nil {
			continue
		}
		ts := *prev.Phases[i].CompletedAt
		out.Phases[i].CompletedAt = &ts
	}
	// The pending note only describes a first phase that is still open.
	if out.Phases[0].Done() && out.Phases[0].Notes == PendingNote {
		out.Phases[0].Notes = ""
	}
	return out
}

// Empty returns the progression for a request with no status yet.
func Empty() Progress {
	return Derive(Input{})
}
