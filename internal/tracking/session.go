// Package tracking runs a live tracking session for one service request. It
// reconciles the polled request snapshot, the polled chat transcript and the
// viewer's location into a single View.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/chat"
	"github.com/zulandar/servicetrack/internal/location"
	"github.com/zulandar/servicetrack/internal/notify"
	"github.com/zulandar/servicetrack/internal/phase"
	"github.com/zulandar/servicetrack/internal/schedule"
)

// Default timer intervals.
const (
	DefaultSnapshotPoll = 15 * time.Second
	DefaultETADecay     = 30 * time.Second
)

// User-facing messages.
const (
	EmptyNoRequests     = "You have no active service requests."
	EmptyNotFound       = "This service request could not be found."
	NoticeRefreshFailed = "Couldn't refresh tracking. Retrying shortly."
	NoticeCancelFailed  = "Couldn't cancel the request. Please try again."
)

var (
	ErrClosed      = errors.New("tracking: session is closed")
	ErrNotTracking = errors.New("tracking: no request is being tracked")

	// errStale marks a result that arrived after the session moved on.
	errStale = errors.New("tracking: stale response")
)

// Session tracks one active request at a time. All view state is guarded by
// mu; fetches run unlocked and their results are applied only if the
// generation they started under is still current.
type Session struct {
	client       api.Client
	sched        schedule.Scheduler
	chat         *chat.Sync
	feed         *notify.Feed
	provider     location.Provider
	cache        location.Cache
	defaultFix   location.Fix
	locMaxAge    time.Duration
	locTimeout   time.Duration
	snapshotPoll time.Duration
	etaDecay     time.Duration
	onChange     func(View)
	now          func() time.Time

	mu          sync.Mutex
	gen         uint64
	closed      bool
	state       State
	id          string
	req         *api.ServiceRequest
	fingerprint string
	profile     *api.TechnicianProfile
	tech        *TechnicianInfo
	progress    phase.Progress
	viewer      location.Fix
	notice      string
	emptyMsg    string
	stale       int
	updatedAt   time.Time
	stops       []func()
	watcher     *location.Watcher
	cancelRun   context.CancelFunc
}

// SessionOpts holds parameters for creating a Session.
type SessionOpts struct {
	Client          api.Client
	ViewerID        string
	Scheduler       schedule.Scheduler
	Locator         location.Provider // defaults to location.Unavailable
	LocationCache   location.Cache    // optional
	DefaultLocation location.Fix      // regional fallback
	LocationMaxAge  time.Duration     // defaults to location.DefaultMaxAge
	LocationTimeout time.Duration     // defaults to location.DefaultTimeout
	SnapshotPoll    time.Duration     // defaults to DefaultSnapshotPoll
	ETADecay        time.Duration     // defaults to DefaultETADecay
	ChatPoll        time.Duration     // defaults to chat.DefaultPollInterval
	NotificationCap int               // defaults to notify.DefaultCapacity
	OnChange        func(View)        // called after every applied change, outside the lock
	Now             func() time.Time  // defaults to time.Now
}

// NewSession creates a Session in the loading state. Nothing is fetched
// until Track is called.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("tracking: session: client is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("tracking: session: scheduler is required")
	}
	snapshotPoll := opts.SnapshotPoll
	if snapshotPoll <= 0 {
		snapshotPoll = DefaultSnapshotPoll
	}
	etaDecay := opts.ETADecay
	if etaDecay <= 0 {
		etaDecay = DefaultETADecay
	}
	provider := opts.Locator
	if provider == nil {
		provider = location.Unavailable{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		client:       opts.Client,
		sched:        opts.Scheduler,
		feed:         notify.NewFeed(opts.NotificationCap),
		provider:     provider,
		cache:        opts.LocationCache,
		defaultFix:   opts.DefaultLocation,
		locMaxAge:    opts.LocationMaxAge,
		locTimeout:   opts.LocationTimeout,
		snapshotPoll: snapshotPoll,
		etaDecay:     etaDecay,
		onChange:     opts.OnChange,
		now:          now,
		state:        StateLoading,
		progress:     phase.Empty(),
	}

	cs, err := chat.NewSync(chat.SyncOpts{
		Client:       opts.Client,
		ViewerID:     opts.ViewerID,
		Scheduler:    opts.Scheduler,
		PollInterval: opts.ChatPoll,
		OnChange:     s.emit,
	})
	if err != nil {
		return nil, fmt.Errorf("tracking: session: %w", err)
	}
	s.chat = cs
	return s, nil
}

// Track switches the session to request id and runs the initial
// fetch-and-derive sequence. An empty id tracks the viewer's active request.
// Everything belonging to the previously tracked request is torn down first.
func (s *Session) Track(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.id = id
	s.req = nil
	s.fingerprint = ""
	s.profile = nil
	s.tech = nil
	s.progress = phase.Empty()
	s.notice = ""
	s.emptyMsg = ""
	s.feed.Clear()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	s.mu.Unlock()
	s.emit()

	if id == "" {
		picked, err := s.resolveActive(runCtx, gen)
		if err != nil {
			return err
		}
		if picked == "" {
			return nil
		}
		id = picked
	}

	w, err := location.NewWatcher(location.WatcherOpts{
		Provider: s.provider,
		Cache:    s.cache,
		Default:  s.defaultFix,
		MaxAge:   s.locMaxAge,
		Timeout:  s.locTimeout,
		OnFix:    func(f location.Fix) { s.applyFix(gen, f) },
	})
	if err != nil {
		return fmt.Errorf("tracking: track %s: %w", id, err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	s.id = id
	s.watcher = w
	s.viewer = w.Current()
	s.chat.Open(runCtx, id)
	s.mu.Unlock()

	_, loadErr := s.load(runCtx, gen, id, false)
	if errors.Is(loadErr, errStale) {
		return nil
	}

	s.mu.Lock()
	if gen != s.gen || s.state == StateEmpty {
		s.mu.Unlock()
		return nil
	}
	s.stops = append(s.stops,
		s.sched.Every(s.snapshotPoll, func() { s.poll(runCtx, gen, id) }),
		s.sched.Every(s.etaDecay, func() { s.decay(gen) }),
	)
	s.mu.Unlock()

	w.Start(runCtx)
	s.chat.RefreshOpen(runCtx, id, chat.RefreshOpts{})
	return loadErr
}

// resolveActive lists the viewer's requests and returns the one to track. An
// empty result moves the session to the empty state.
func (s *Session) resolveActive(ctx context.Context, gen uint64) (string, error) {
	reqs, err := s.client.ListRequests(ctx)

	s.mu.Lock()
	if gen != s.gen {
		s.stale++
		s.mu.Unlock()
		return "", nil
	}
	if err != nil {
		s.notice = NoticeRefreshFailed
		s.mu.Unlock()
		s.emit()
		return "", fmt.Errorf("tracking: list requests: %w", err)
	}
	id := pickActive(reqs)
	if id == "" {
		s.state = StateEmpty
		s.emptyMsg = EmptyNoRequests
		s.mu.Unlock()
		s.emit()
		return "", nil
	}
	s.mu.Unlock()
	return id, nil
}

// load fetches the snapshot and technician profile and applies them if the
// session is still on gen. It reports whether the view changed.
func (s *Session) load(ctx context.Context, gen uint64, id string, silent bool) (bool, error) {
	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if !current {
		return false, errStale
	}

	req, err := s.client.GetRequest(ctx, id)
	if err != nil {
		return false, s.loadFailed(gen, id, silent, err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.stale++
		s.mu.Unlock()
		return false, errStale
	}
	if s.outOfOrderLocked(req) {
		s.mu.Unlock()
		return false, nil
	}
	fp := fingerprint(req)
	if fp == s.fingerprint {
		cleared := s.notice != ""
		s.notice = ""
		s.mu.Unlock()
		if cleared {
			s.emit()
		}
		return false, nil
	}
	s.mu.Unlock()

	var profile *api.TechnicianProfile
	if uid := req.TechnicianUserID(); uid != "" {
		profiles, err := s.client.GetTechnicianProfiles(ctx, uid)
		switch {
		case err != nil:
			log.Printf("tracking: technician profile %s: %v", uid, err)
		case len(profiles) > 0:
			profile = &profiles[0]
		}
	}

	s.mu.Lock()
	if gen != s.gen {
		s.stale++
		s.mu.Unlock()
		return false, errStale
	}
	if s.outOfOrderLocked(req) || fp == s.fingerprint {
		s.mu.Unlock()
		return false, nil
	}
	s.applyLocked(req, fp, profile)
	s.mu.Unlock()
	s.emit()
	return true, nil
}

// outOfOrderLocked reports, and counts, a snapshot older than the applied
// one. Caller holds s.mu.
func (s *Session) outOfOrderLocked(req *api.ServiceRequest) bool {
	if s.req == nil || !req.UpdatedAt.Before(s.req.UpdatedAt) {
		return false
	}
	s.stale++
	log.Printf("tracking: discarded out-of-order snapshot for %s (%s < %s)",
		req.ID, req.UpdatedAt.Format(time.RFC3339), s.req.UpdatedAt.Format(time.RFC3339))
	return true
}

func (s *Session) loadFailed(gen uint64, id string, silent bool, err error) error {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.emit()
	}()
	if gen != s.gen {
		s.stale++
		return errStale
	}
	if errors.Is(err, api.ErrNotFound) {
		s.teardownLocked()
		s.gen++
		s.state = StateEmpty
		s.emptyMsg = EmptyNotFound
		return nil
	}
	if silent {
		log.Printf("tracking: poll %s: %v", id, err)
		return fmt.Errorf("tracking: fetch %s: %w", id, err)
	}
	s.notice = NoticeRefreshFailed
	return fmt.Errorf("tracking: fetch %s: %w", id, err)
}

// applyLocked installs a new snapshot and re-derives everything from it.
// Caller holds s.mu.
func (s *Session) applyLocked(req *api.ServiceRequest, fp string, profile *api.TechnicianProfile) {
	prev := s.req
	s.req = req
	s.fingerprint = fp
	switch {
	case profile != nil:
		s.profile = profile
	case s.profile != nil && s.profile.UserID != req.TechnicianUserID():
		// Reassigned, and the new technician's profile could not be fetched.
		s.profile = nil
	}

	next := phase.Derive(phase.Input{
		Status:       req.Phase(),
		At:           req.Anchor(),
		CancelReason: req.CancellationReason,
	})
	s.progress = phase.Carry(s.progress, next)

	s.tech = projectTechnician(req, s.profile)
	if s.tech != nil {
		measure(s.tech, s.viewer, req)
	}

	if prev != nil && prev.Phase() != req.Phase() {
		at := req.UpdatedAt
		if at.IsZero() {
			at = s.now()
		}
		s.feed.Push(statusChange(prev.Phase(), req.Phase(), at))
	}
	s.feed.Seed(req.Anchor(), derivedNotifications(req, s.tech))

	s.state = StateTracking
	s.notice = ""
	s.emptyMsg = ""
	s.updatedAt = s.now()
}

// poll is the snapshot timer job.
func (s *Session) poll(ctx context.Context, gen uint64, id string) {
	changed, err := s.load(ctx, gen, id, true)
	if err != nil || !changed {
		return
	}
	s.chat.RefreshOpen(ctx, id, chat.RefreshOpts{Silent: true})
}

// decay is the ETA timer job: the displayed ETA counts down by one decay
// interval per tick and stops at zero.
func (s *Session) decay(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.tech == nil || !s.tech.HasETA || s.tech.ETA == 0 {
		s.mu.Unlock()
		return
	}
	s.tech.ETA -= s.etaDecay
	if s.tech.ETA < 0 {
		s.tech.ETA = 0
	}
	s.mu.Unlock()
	s.emit()
}

// applyFix handles a device location fix. Distance is recomputed; the ETA
// may shrink but never grows outside a snapshot refresh.
func (s *Session) applyFix(gen uint64, fix location.Fix) {
	s.mu.Lock()
	if gen != s.gen {
		s.stale++
		s.mu.Unlock()
		return
	}
	s.viewer = fix
	if s.tech != nil && s.req != nil {
		prevETA, hadETA := s.tech.ETA, s.tech.HasETA
		measure(s.tech, fix, s.req)
		if hadETA && s.tech.HasETA && s.tech.ETA > prevETA {
			s.tech.ETA = prevETA
		}
	}
	s.mu.Unlock()
	s.emit()
}

// Refresh re-runs the fetch-and-derive sequence for the tracked request and
// refreshes the chat, surfacing failures as a notice.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	id, gen, state := s.id, s.gen, s.state
	s.mu.Unlock()
	if id == "" || state == StateEmpty {
		return ErrNotTracking
	}
	if _, err := s.load(ctx, gen, id, false); err != nil && !errors.Is(err, errStale) {
		return err
	}
	if err := s.chat.RefreshOpen(ctx, id, chat.RefreshOpts{}); err != nil {
		return fmt.Errorf("tracking: refresh %s: %w", id, err)
	}
	return nil
}

// Cancel posts a cancellation for the tracked request and re-runs the full
// fetch-and-derive sequence.
func (s *Session) Cancel(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	id, gen, state := s.id, s.gen, s.state
	s.mu.Unlock()
	if state != StateTracking || id == "" {
		return ErrNotTracking
	}

	err := s.client.UpdateStatus(ctx, id, api.StatusUpdate{
		Status: string(phase.StatusCancelled),
		Reason: reason,
	})
	if err != nil {
		s.mu.Lock()
		if gen == s.gen {
			s.notice = NoticeCancelFailed
		}
		s.mu.Unlock()
		s.emit()
		return fmt.Errorf("tracking: cancel %s: %w", id, err)
	}

	if _, err := s.load(ctx, gen, id, false); err != nil && !errors.Is(err, errStale) {
		return err
	}
	s.chat.RefreshOpen(ctx, id, chat.RefreshOpts{Silent: true})
	return nil
}

// Send posts a chat message in the tracked request's conversation.
func (s *Session) Send(ctx context.Context, text string) (chat.Message, error) {
	s.mu.Lock()
	closed, id, state := s.closed, s.id, s.state
	s.mu.Unlock()
	if closed {
		return chat.Message{}, ErrClosed
	}
	if id == "" || state == StateEmpty {
		return chat.Message{}, ErrNotTracking
	}
	return s.chat.Send(ctx, id, text)
}

// Dismiss dismisses one notification.
func (s *Session) Dismiss(id string) bool {
	ok := s.feed.Dismiss(id)
	if ok {
		s.emit()
	}
	return ok
}

// DismissAll dismisses every notification.
func (s *Session) DismissAll() {
	s.feed.DismissAll()
	s.emit()
}

// Close tears the session down. No state changes after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.teardownLocked()
	s.closed = true
	s.gen++
	s.state = StateClosed
}

// teardownLocked stops every timer, watcher and poll belonging to the
// current request. Caller holds s.mu.
func (s *Session) teardownLocked() {
	for _, stop := range s.stops {
		stop()
	}
	s.stops = nil
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	s.chat.Close()
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
}

// View returns a deep copy of the current view model.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		State:         s.state,
		RequestID:     s.id,
		Request:       cloneRequest(s.req),
		Technician:    cloneTechnician(s.tech),
		Progress:      cloneProgress(s.progress),
		Viewer:        s.viewer,
		Messages:      s.chat.Messages(),
		Unread:        s.chat.Unread(),
		Notifications: s.feed.Active(),
		Notice:        s.notice,
		EmptyMessage:  s.emptyMsg,
		StaleDiscards: s.stale + s.chat.StaleDiscards(),
		UpdatedAt:     s.updatedAt,
	}
	if v.Notice == "" {
		v.Notice = s.chat.Notice()
	}
	return v
}

// emit delivers the current view to OnChange.
func (s *Session) emit() {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	v := s.viewLocked()
	s.mu.Unlock()
	s.onChange(v)
}
