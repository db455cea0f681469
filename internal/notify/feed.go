// Package notify holds the client-side notification feed of a tracking
// session. Notifications are ephemeral and never sent to the server.
package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity bounds the feed when NewFeed is given no capacity.
const DefaultCapacity = 50

// Type classifies a notification.
type Type string

const (
	TypeTechnicianAssigned Type = "technician_assigned"
	TypeStatus             Type = "status"
	TypeETA                Type = "eta"
	TypeStatusChange       Type = "status_change"
	TypeMessage            Type = "message"
)

// Action is an optional follow-up the display layer can offer.
type Action struct {
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Notification is one feed entry.
type Notification struct {
	ID        string    `json:"id"`
	Key       string    `json:"key,omitempty"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
	Dismissed bool      `json:"dismissed"`
	Action    *Action   `json:"action,omitempty"`

	seeded bool
	seq    uint64
}

// Feed is a bounded, dismissible notification queue. Seeded entries are
// derived from the current snapshot and replaced on every Seed; pushed
// entries accumulate until the capacity drops the oldest.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	seq      uint64
}

// NewFeed creates a Feed holding at most capacity entries.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{capacity: capacity}
}

// Seed replaces the derived entries with ns, stamped at anchor unless they
// carry their own time. An entry whose key and message match a previously
// seeded one keeps that entry's id and dismissed flag.
func (f *Feed) Seed(anchor time.Time, ns []Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := make(map[string]Notification)
	kept := f.items[:0:0]
	for _, n := range f.items {
		if n.seeded {
			prev[n.Key+"\x00"+n.Message] = n
			continue
		}
		kept = append(kept, n)
	}

	for _, n := range ns {
		if n.At.IsZero() {
			n.At = anchor
		}
		n.seeded = true
		k := n.Key + "\x00" + n.Message
		if old, ok := prev[k]; ok {
			delete(prev, k)
			n.ID = old.ID
			n.Dismissed = old.Dismissed
			n.seq = old.seq
		} else {
			n.ID = uuid.NewString()
			f.seq++
			n.seq = f.seq
		}
		kept = append(kept, n)
	}
	f.items = kept
	f.trimLocked()
}

// Push appends a notification and returns it with its assigned id.
func (f *Feed) Push(n Notification) Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	n.seeded = false
	f.seq++
	n.seq = f.seq
	f.items = append(f.items, n)
	f.trimLocked()
	return n
}

// trimLocked drops the oldest entries beyond capacity. Caller holds f.mu.
func (f *Feed) trimLocked() {
	sortOldestFirst(f.items)
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append(f.items[:0:0], f.items[over:]...)
	}
}

// Dismiss marks the entry with id as dismissed. Returns false if no such
// entry exists.
func (f *Feed) Dismiss(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Dismissed = true
			return true
		}
	}
	return false
}

// DismissAll marks every entry as dismissed.
func (f *Feed) DismissAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		f.items[i].Dismissed = true
	}
}

// Active returns the entries not yet dismissed, newest first.
func (f *Feed) Active() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Notification
	for i := len(f.items) - 1; i >= 0; i-- {
		if !f.items[i].Dismissed {
			out = append(out, clone(f.items[i]))
		}
	}
	return out
}

// All returns every entry, newest first.
func (f *Feed) All() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, 0, len(f.items))
	for i := len(f.items) - 1; i >= 0; i-- {
		out = append(out, clone(f.items[i]))
	}
	return out
}

// Clear removes every entry.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}

// Len returns the number of entries.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func clone(n Notification) Notification {
	if n.Action != nil {
		a := *n.Action
		n.Action = &a
	}
	return n
}

// sortOldestFirst orders by time, then by insertion.
func sortOldestFirst(ns []Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].At.Equal(ns[j].At) {
			return ns[i].At.Before(ns[j].At)
		}
		return ns[i].seq < ns[j].seq
	})
}
