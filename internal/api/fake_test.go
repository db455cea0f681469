package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

var _ Client = (*Fake)(nil)
var _ Client = (*HTTPClient)(nil)

func TestFake_GetRequestNotFound(t *testing.T) {
	f := NewFake("u1")
	_, err := f.GetRequest(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if f.CallCount(MethodGetRequest) != 1 {
		t.Errorf("CallCount = %d, want 1", f.CallCount(MethodGetRequest))
	}
}

func TestFake_ListRequestsInInsertionOrder(t *testing.T) {
	f := NewFake("u1")
	f.SetRequest(ServiceRequest{ID: "b", Status: "pending"})
	f.SetRequest(ServiceRequest{ID: "a", Status: "completed"})
	f.SetRequest(ServiceRequest{ID: "b", Status: "confirmed"})

	got, err := f.ListRequests(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("got %+v, want [b a]", got)
	}
	if got[0].Status != "confirmed" {
		t.Errorf("b status = %q, want replaced value", got[0].Status)
	}
}

func TestFake_PostMessageAssignsQueuedIDs(t *testing.T) {
	f := NewFake("u1")
	f.SetPostIDs("m9")

	m, err := f.PostMessage(context.Background(), "abc", OutgoingMessage{Type: MessageText, Content: "Hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "m9" || m.SenderID != "u1" || m.Status != DeliverySent {
		t.Errorf("posted = %+v", m)
	}
	next, _ := f.PostMessage(context.Background(), "abc", OutgoingMessage{Type: MessageText, Content: "again"})
	if next.ID != "m2" {
		t.Errorf("second id = %q, want m2", next.ID)
	}
	msgs, _ := f.ListMessages(context.Background(), "abc")
	if len(msgs) != 2 {
		t.Errorf("transcript len = %d, want 2", len(msgs))
	}
}

func TestFake_SetErrorAndClear(t *testing.T) {
	f := NewFake("u1")
	boom := &TransientError{Op: "list messages", Err: errors.New("boom")}
	f.SetError(MethodListMessages, boom)
	if _, err := f.ListMessages(context.Background(), "abc"); !IsTransient(err) {
		t.Fatalf("err = %v, want injected transient", err)
	}
	f.SetError(MethodListMessages, nil)
	if _, err := f.ListMessages(context.Background(), "abc"); err != nil {
		t.Fatalf("err after clear = %v", err)
	}
}

func TestFake_UpdateStatusStampsRequest(t *testing.T) {
	f := NewFake("u1")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.SetNow(func() time.Time { return now })
	f.SetRequest(ServiceRequest{ID: "R1", Status: "confirmed"})

	if err := f.UpdateStatus(context.Background(), "R1", StatusUpdate{Status: "cancelled", Reason: "no longer needed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, _ := f.Request("R1")
	if r.Status != "cancelled" || r.CancellationReason != "no longer needed" || !r.UpdatedAt.Equal(now) {
		t.Errorf("request = %+v", r)
	}
}

func TestFake_HookHoldsResponse(t *testing.T) {
	f := NewFake("u1")
	f.SetRequest(ServiceRequest{ID: "R1", Status: "pending"})
	entered := make(chan struct{})
	release := make(chan struct{})
	f.SetHook(MethodGetRequest, func(ctx context.Context, arg string) {
		close(entered)
		<-release
	})

	done := make(chan *ServiceRequest)
	go func() {
		r, _ := f.GetRequest(context.Background(), "R1")
		done <- r
	}()

	// The response was computed before the hook, so a later change is not seen.
	<-entered
	f.SetRequest(ServiceRequest{ID: "R1", Status: "completed"})
	close(release)

	r := <-done
	if r == nil || r.Status != "pending" {
		t.Errorf("got %+v, want the pending snapshot", r)
	}
}
