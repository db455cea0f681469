package schedule

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven explicitly by tests through Advance. Jobs run
// synchronously on the caller's goroutine.
type Manual struct {
	mu     sync.Mutex
	nextID int
	jobs   map[int]*manualJob
}

type manualJob struct {
	id       int
	interval time.Duration
	elapsed  time.Duration
	fn       func()
}

// NewManual creates an empty Manual scheduler.
func NewManual() *Manual {
	return &Manual{jobs: make(map[int]*manualJob)}
}

// Every registers job. Non-positive intervals are treated as one second.
func (m *Manual) Every(interval time.Duration, job func()) func() {
	if interval <= 0 {
		interval = time.Second
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.jobs[id] = &manualJob{id: id, interval: interval, fn: job}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
	}
}

// Advance moves the virtual clock forward by d and runs every job whose
// interval elapsed, once per elapsed interval. Jobs run in registration
// order. A job removed by an earlier job in the same Advance does not run.
func (m *Manual) Advance(d time.Duration) {
	type firing struct {
		id    int
		times int
	}
	m.mu.Lock()
	var due []firing
	for _, j := range m.jobs {
		j.elapsed += d
		n := int(j.elapsed / j.interval)
		if n > 0 {
			j.elapsed -= time.Duration(n) * j.interval
			due = append(due, firing{id: j.id, times: n})
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(a, b int) bool { return due[a].id < due[b].id })
	for _, f := range due {
		for i := 0; i < f.times; i++ {
			m.mu.Lock()
			j, ok := m.jobs[f.id]
			m.mu.Unlock()
			if !ok {
				break
			}
			j.fn()
		}
	}
}

// Len returns the number of registered jobs.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Intervals returns the intervals of all registered jobs, sorted.
func (m *Manual) Intervals() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.interval)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
