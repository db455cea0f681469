package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/schedule"
)

// DefaultPollInterval is the background refresh cadence of an open conversation.
const DefaultPollInterval = 5 * time.Second

// MaxMessageLength is the longest accepted message, in runes.
const MaxMessageLength = 2000

// User-facing notices.
const (
	NoticeFetchFailed = "Couldn't load messages. Pull to retry."
	NoticeSendFailed  = "Message not sent. Please try again."
)

var (
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrMessageTooLong = fmt.Errorf("chat: message exceeds %d characters", MaxMessageLength)
	ErrSendInFlight   = errors.New("chat: a message is already being sent")
)

// FetchError is a failed transcript refresh. The next poll may recover.
type FetchError struct {
	ConversationID string
	Err            error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("chat: refresh %s: %v", e.ConversationID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError is a failed send. The transcript is unchanged and the caller
// still holds the text for a retry.
type SendError struct {
	ConversationID string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("chat: send to %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Client is the subset of api.Client that chat needs.
type Client interface {
	ListMessages(ctx context.Context, conversationID string) ([]api.RawMessage, error)
	PostMessage(ctx context.Context, conversationID string, msg api.OutgoingMessage) (*api.RawMessage, error)
}

// RefreshOpts controls a single refresh.
type RefreshOpts struct {
	// Silent refreshes log failures instead of surfacing a notice.
	Silent bool
}

// Sync owns the transcript of the selected conversation. Both writers, the
// poll and the send path, merge into one set keyed by message id, so their
// completion order does not matter.
type Sync struct {
	client   Client
	viewerID string
	sched    schedule.Scheduler
	interval time.Duration
	onChange func()

	mu            sync.Mutex
	convID        string
	gen           uint64
	transcript    []Message
	confirmed     map[string]Message // sent, not yet seen in a server list
	sending       bool
	notice        string
	staleDiscards int
	stopPoll      func()
	cancelPollCtx context.CancelFunc
	pollParent    context.Context // set while polling is open
}

// SyncOpts holds parameters for creating a Sync.
type SyncOpts struct {
	Client       Client
	ViewerID     string
	Scheduler    schedule.Scheduler
	PollInterval time.Duration // defaults to DefaultPollInterval
	OnChange     func()        // called after every applied change, outside the lock
}

// NewSync creates a Sync.
func NewSync(opts SyncOpts) (*Sync, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("chat: sync: client is required")
	}
	if opts.ViewerID == "" {
		return nil, fmt.Errorf("chat: sync: viewer id is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("chat: sync: scheduler is required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Sync{
		client:    opts.Client,
		viewerID:  opts.ViewerID,
		sched:     opts.Scheduler,
		interval:  interval,
		onChange:  opts.OnChange,
		confirmed: make(map[string]Message),
	}, nil
}

// selectLocked makes id the current conversation, discarding the previous
// transcript and invalidating in-flight work. An open poll follows the
// selection to id. Caller holds s.mu.
func (s *Sync) selectLocked(id string) {
	if id == s.convID {
		return
	}
	polling := s.stopPoll != nil
	s.stopLocked()
	s.gen++
	s.convID = id
	s.transcript = nil
	s.confirmed = make(map[string]Message)
	s.notice = ""
	if polling {
		s.startPollLocked()
	}
}

// startPollLocked schedules silent refreshes of the selected conversation
// under s.pollParent. Caller holds s.mu.
func (s *Sync) startPollLocked() {
	pollCtx, cancel := context.WithCancel(s.pollParent)
	s.cancelPollCtx = cancel
	id, gen := s.convID, s.gen
	s.stopPoll = s.sched.Every(s.interval, func() {
		s.refresh(pollCtx, id, gen, true)
	})
}

// stopLocked cancels background polling. Caller holds s.mu.
func (s *Sync) stopLocked() {
	if s.stopPoll != nil {
		s.stopPoll()
		s.stopPoll = nil
	}
	if s.cancelPollCtx != nil {
		s.cancelPollCtx()
		s.cancelPollCtx = nil
	}
}

// Open selects the conversation and starts silent background refreshes.
// Opening another id stops the previous poll.
func (s *Sync) Open(ctx context.Context, conversationID string) {
	s.mu.Lock()
	s.stopLocked()
	s.pollParent = ctx
	s.selectLocked(conversationID)
	s.startPollLocked()
	s.mu.Unlock()
}

// Close stops polling and clears the transcript. Results still in flight are
// discarded.
func (s *Sync) Close() {
	s.mu.Lock()
	s.stopLocked()
	s.pollParent = nil
	s.gen++
	s.convID = ""
	s.transcript = nil
	s.confirmed = make(map[string]Message)
	s.notice = ""
	s.mu.Unlock()
}

// Refresh fetches the full transcript of conversationID and replaces the
// local one, selecting the conversation first if needed. A result that
// arrives after another conversation was selected is dropped.
func (s *Sync) Refresh(ctx context.Context, conversationID string, opts RefreshOpts) error {
	s.mu.Lock()
	s.selectLocked(conversationID)
	gen := s.gen
	s.mu.Unlock()
	return s.refresh(ctx, conversationID, gen, opts.Silent)
}

// RefreshOpen refreshes conversationID only if it is still the selected
// conversation; otherwise it does nothing.
func (s *Sync) RefreshOpen(ctx context.Context, conversationID string, opts RefreshOpts) error {
	s.mu.Lock()
	if conversationID == "" || conversationID != s.convID {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()
	return s.refresh(ctx, conversationID, gen, opts.Silent)
}

func (s *Sync) refresh(ctx context.Context, id string, gen uint64, silent bool) error {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	raws, err := s.client.ListMessages(ctx, id)

	s.mu.Lock()
	if gen != s.gen {
		s.staleDiscards++
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		ferr := &FetchError{ConversationID: id, Err: err}
		if silent {
			s.mu.Unlock()
			log.Printf("chat: poll %s: %v", id, err)
			return nil
		}
		s.notice = NoticeFetchFailed
		s.mu.Unlock()
		s.changed()
		return ferr
	}
	s.mergeLocked(raws)
	s.mu.Unlock()
	s.changed()
	return nil
}

// mergeLocked replaces the transcript with the server list plus any
// send-confirmed messages the list does not contain yet. Caller holds s.mu.
func (s *Sync) mergeLocked(raws []api.RawMessage) {
	set := make(map[string]Message, len(raws)+len(s.confirmed))
	for _, r := range raws {
		if r.ID == "" {
			continue
		}
		set[r.ID] = Normalize(r, s.viewerID)
	}
	for id, m := range s.confirmed {
		if _, ok := set[id]; ok {
			delete(s.confirmed, id)
			continue
		}
		set[id] = m
	}
	s.transcript = ordered(set)
	s.notice = ""
}

// Send posts a text message to conversationID. On success the confirmed
// message is in the transcript before Send returns.
func (s *Sync) Send(ctx context.Context, conversationID, text string) (Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return Message{}, ErrMessageTooLong
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return Message{}, ErrSendInFlight
	}
	s.selectLocked(conversationID)
	s.sending = true
	gen := s.gen
	s.mu.Unlock()

	raw, err := s.client.PostMessage(ctx, conversationID, api.OutgoingMessage{
		Type:    api.MessageText,
		Content: content,
	})

	s.mu.Lock()
	s.sending = false
	if err != nil {
		if gen == s.gen {
			s.notice = NoticeSendFailed
		}
		s.mu.Unlock()
		s.changed()
		return Message{}, &SendError{ConversationID: conversationID, Err: err}
	}
	msg := Normalize(*raw, s.viewerID)
	if gen != s.gen {
		s.staleDiscards++
		s.mu.Unlock()
		return msg, nil
	}
	if !s.hasLocked(msg.ID) {
		s.confirmed[msg.ID] = msg
		set := make(map[string]Message, len(s.transcript)+1)
		for _, m := range s.transcript {
			set[m.ID] = m
		}
		set[msg.ID] = msg
		s.transcript = ordered(set)
	}
	if s.notice == NoticeSendFailed {
		s.notice = ""
	}
	s.mu.Unlock()
	s.changed()
	return msg, nil
}

func (s *Sync) hasLocked(id string) bool {
	for _, m := range s.transcript {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Sync) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// ConversationID returns the selected conversation, or "" when closed.
func (s *Sync) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

// Messages returns a copy of the transcript in display order.
func (s *Sync) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.transcript)
}

// Unread counts messages from the counterparty not yet marked read.
func (s *Sync) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.transcript {
		if m.Unread() {
			n++
		}
	}
	return n
}

// Sending reports whether a send is in flight.
func (s *Sync) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Notice returns the current user-facing error notice, or "".
func (s *Sync) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// StaleDiscards counts results dropped because the conversation changed
// while they were in flight.
func (s *Sync) StaleDiscards() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleDiscards
}
