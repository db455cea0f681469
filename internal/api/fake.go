package api

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Method names used to target errors, hooks and call records on Fake.
const (
	MethodGetRequest    = "GetRequest"
	MethodListRequests  = "ListRequests"
	MethodGetTechnician = "GetTechnicianProfiles"
	MethodUpdateStatus  = "UpdateStatus"
	MethodListMessages  = "ListMessages"
	MethodPostMessage   = "PostMessage"
)

// Call is one recorded invocation on Fake.
type Call struct {
	Method string
	Arg    string
}

// Fake implements Client in memory for testing and offline demos. It records
// every call, can be told to fail per method, and can hold responses open
// through hooks to simulate slow or overlapping requests.
type Fake struct {
	mu       sync.Mutex
	viewerID string
	requests map[string]ServiceRequest
	order    []string
	profiles map[string][]TechnicianProfile
	messages map[string][]RawMessage
	errs     map[string]error
	hooks    map[string]func(ctx context.Context, arg string)
	calls    []Call
	seq      int
	postIDs  []string
	now      func() time.Time
}

// NewFake creates an empty Fake speaking for viewerID.
func NewFake(viewerID string) *Fake {
	return &Fake{
		viewerID: viewerID,
		requests: make(map[string]ServiceRequest),
		profiles: make(map[string][]TechnicianProfile),
		messages: make(map[string][]RawMessage),
		errs:     make(map[string]error),
		hooks:    make(map[string]func(context.Context, string)),
		now:      time.Now,
	}
}

// ViewerID returns the viewer the fake speaks for.
func (f *Fake) ViewerID() string { return f.viewerID }

// GetRequest returns a copy of the stored request.
func (f *Fake) GetRequest(ctx context.Context, id string) (*ServiceRequest, error) {
	f.mu.Lock()
	err := f.record(MethodGetRequest, id)
	r, ok := f.requests[id]
	f.mu.Unlock()
	f.hook(ctx, MethodGetRequest, id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("api: get request: %w", ErrNotFound)
	}
	return &r, nil
}

// ListRequests returns stored requests in insertion order.
func (f *Fake) ListRequests(ctx context.Context) ([]ServiceRequest, error) {
	f.mu.Lock()
	err := f.record(MethodListRequests, "")
	out := make([]ServiceRequest, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.requests[id])
	}
	f.mu.Unlock()
	f.hook(ctx, MethodListRequests, "")
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTechnicianProfiles returns the profiles stored for userID.
func (f *Fake) GetTechnicianProfiles(ctx context.Context, userID string) ([]TechnicianProfile, error) {
	f.mu.Lock()
	err := f.record(MethodGetTechnician, userID)
	out := append([]TechnicianProfile(nil), f.profiles[userID]...)
	f.mu.Unlock()
	f.hook(ctx, MethodGetTechnician, userID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus applies the transition to the stored request.
func (f *Fake) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	f.mu.Lock()
	err := f.record(MethodUpdateStatus, id)
	if err == nil {
		r, ok := f.requests[id]
		if !ok {
			err = fmt.Errorf("api: update status: %w", ErrNotFound)
		} else {
			r.Status = update.Status
			if update.Reason != "" {
				r.CancellationReason = update.Reason
			}
			r.UpdatedAt = f.now()
			f.requests[id] = r
		}
	}
	f.mu.Unlock()
	f.hook(ctx, MethodUpdateStatus, id)
	return err
}

// ListMessages returns the stored transcript of a conversation.
func (f *Fake) ListMessages(ctx context.Context, conversationID string) ([]RawMessage, error) {
	f.mu.Lock()
	err := f.record(MethodListMessages, conversationID)
	out := append([]RawMessage(nil), f.messages[conversationID]...)
	f.mu.Unlock()
	f.hook(ctx, MethodListMessages, conversationID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PostMessage stores a message from the viewer and returns the confirmed
// record. Ids come from SetPostIDs, then "m1", "m2", ...
func (f *Fake) PostMessage(ctx context.Context, conversationID string, msg OutgoingMessage) (*RawMessage, error) {
	f.mu.Lock()
	err := f.record(MethodPostMessage, conversationID)
	var out RawMessage
	if err == nil {
		f.seq++
		id := fmt.Sprintf("m%d", f.seq)
		if len(f.postIDs) > 0 {
			id, f.postIDs = f.postIDs[0], f.postIDs[1:]
		}
		out = RawMessage{
			ID:        id,
			SenderID:  f.viewerID,
			Type:      msg.Type,
			Content:   msg.Content,
			CreatedAt: f.now(),
			Status:    DeliverySent,
		}
		f.messages[conversationID] = append(f.messages[conversationID], out)
	}
	f.mu.Unlock()
	f.hook(ctx, MethodPostMessage, conversationID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// record appends to the call log and returns the injected error, if any.
// Caller holds f.mu.
func (f *Fake) record(method, arg string) error {
	f.calls = append(f.calls, Call{Method: method, Arg: arg})
	return f.errs[method]
}

func (f *Fake) hook(ctx context.Context, method, arg string) {
	f.mu.Lock()
	h := f.hooks[method]
	f.mu.Unlock()
	if h != nil {
		h(ctx, arg)
	}
}

// --- Test helpers ---

// SetRequest stores or replaces a request.
func (f *Fake) SetRequest(r ServiceRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[r.ID]; !ok {
		f.order = append(f.order, r.ID)
	}
	f.requests[r.ID] = r
}

// Request returns the stored request.
func (f *Fake) Request(id string) (ServiceRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	return r, ok
}

// SetProfiles stores the technician profiles returned for userID.
func (f *Fake) SetProfiles(userID string, profiles ...TechnicianProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[userID] = profiles
}

// SetMessages replaces a conversation's transcript.
func (f *Fake) SetMessages(conversationID string, msgs ...RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[conversationID] = msgs
}

// AddMessage appends a message to a conversation, as if the counterparty sent it.
func (f *Fake) AddMessage(conversationID string, msg RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[conversationID] = append(f.messages[conversationID], msg)
}

// SetPostIDs queues the ids assigned to the next posted messages.
func (f *Fake) SetPostIDs(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postIDs = append(f.postIDs, ids...)
}

// SetError makes every call to method fail with err. A nil err clears it.
func (f *Fake) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// SetHook installs a function that runs after method has computed its
// result and before it returns. Blocking in the hook holds the response
// in flight. A nil hook clears it.
func (f *Fake) SetHook(method string, h func(ctx context.Context, arg string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h == nil {
		delete(f.hooks, method)
		return
	}
	f.hooks[method] = h
}

// SetNow overrides the clock used for server-side timestamps.
func (f *Fake) SetNow(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Calls returns a copy of every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times method was called.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
