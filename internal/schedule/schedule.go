// Package schedule runs the periodic tasks of a tracking session.
package schedule

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler registers periodic jobs. The returned stop function removes the
// job; it is safe to call more than once.
type Scheduler interface {
	Every(interval time.Duration, job func()) (stop func())
}

// Cron is a Scheduler backed by robfig/cron. Jobs that are still running
// when their next tick arrives are skipped rather than stacked.
type Cron struct {
	c    *cron.Cron
	once sync.Once
}

// NewCron creates and starts a cron-backed scheduler.
func NewCron() *Cron {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Start()
	return &Cron{c: c}
}

// Every schedules job at a constant delay. Intervals below one second are
// rounded up to one second by cron.Every.
func (s *Cron) Every(interval time.Duration, job func()) func() {
	id := s.c.Schedule(cron.Every(interval), cron.FuncJob(job))
	var once sync.Once
	return func() {
		once.Do(func() { s.c.Remove(id) })
	}
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Cron) Stop() {
	s.once.Do(func() {
		<-s.c.Stop().Done()
	})
}

// Len returns the number of registered jobs.
func (s *Cron) Len() int {
	return len(s.c.Entries())
}
