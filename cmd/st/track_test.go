package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/servicetrack/internal/api"
	"github.com/zulandar/servicetrack/internal/location"
	"github.com/zulandar/servicetrack/internal/phase"
	"github.com/zulandar/servicetrack/internal/schedule"
	"github.com/zulandar/servicetrack/internal/tracking"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testDeps(fake *api.Fake) trackDeps {
	return trackDeps{
		Client:   fake,
		ViewerID: "u-cust",
		Sched:    schedule.NewManual(),
		Locator:  location.Unavailable{},
		Default:  location.Fix{Label: "Bangalore"},
	}
}

func pendingFake() *api.Fake {
	fake := api.NewFake("u-cust")
	fake.SetRequest(api.ServiceRequest{
		ID:        "R1",
		Title:     "Leaking tap",
		Status:    string(phase.StatusPending),
		CreatedAt: t0,
		UpdatedAt: t0,
	})
	return fake
}

func TestTrackCmd_Help(t *testing.T) {
	out, err := runCmd(t, "track", "--help")
	if err != nil {
		t.Fatalf("track --help failed: %v", err)
	}
	for _, flag := range []string{"--serve", "--lat", "--lng", "--once", "--config"} {
		if !strings.Contains(out, flag) {
			t.Errorf("expected %s flag, got: %s", flag, out)
		}
	}
}

func TestTrackCmd_TooManyArgs(t *testing.T) {
	if _, err := runCmd(t, "track", "a", "b"); err == nil {
		t.Error("expected error for two request ids")
	}
}

func TestTrackCmd_InvalidLocation(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCmd(t, "track", "R1", "-c", cfg, "--lat", "120", "--lng", "0", "--once")
	if err == nil || !strings.Contains(err.Error(), "invalid location") {
		t.Errorf("err = %v, want invalid location", err)
	}
}

func TestTrackSession_Once(t *testing.T) {
	var out bytes.Buffer
	err := trackSession(context.Background(), &out, testDeps(pendingFake()), "R1", trackOpts{once: true})
	if err != nil {
		t.Fatalf("trackSession: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Request Leaking tap (R1): pending",
		"Technician: not assigned yet",
		"[>] Traveling  " + phase.PendingNote,
		"Current status: pending",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestTrackSession_OnceNotFound(t *testing.T) {
	var out bytes.Buffer
	if err := trackSession(context.Background(), &out, testDeps(pendingFake()), "nope", trackOpts{once: true}); err != nil {
		t.Fatalf("trackSession: %v", err)
	}
	if !strings.Contains(out.String(), tracking.EmptyNotFound) {
		t.Errorf("output = %q, want not-found message", out.String())
	}
}

func TestTrackSession_OnceFailure(t *testing.T) {
	fake := pendingFake()
	fake.SetError(api.MethodGetRequest, errors.New("connection refused"))

	var out bytes.Buffer
	if err := trackSession(context.Background(), &out, testDeps(fake), "R1", trackOpts{once: true}); err == nil {
		t.Error("expected error")
	}
}

func TestTrackSession_FollowsUntilCancelled(t *testing.T) {
	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trackSession(ctx, out, testDeps(pendingFake()), "R1", trackOpts{}) }()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "Current status: pending") {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("timed out; output:\n%s", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("trackSession: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trackSession did not return after cancel")
	}
}

// --- viewPrinter tests ---

func TestViewPrinter_SkipsIdenticalViews(t *testing.T) {
	var out bytes.Buffer
	p := &viewPrinter{out: &out}
	v := tracking.View{State: tracking.StateEmpty, EmptyMessage: tracking.EmptyNoRequests}

	p.Print(v)
	p.Print(v)
	if n := strings.Count(out.String(), tracking.EmptyNoRequests); n != 1 {
		t.Errorf("printed %d times, want 1", n)
	}

	p.Print(tracking.View{State: tracking.StateLoading})
	if !strings.Contains(out.String(), "--\nLoading") {
		t.Errorf("expected separator before the next view, got:\n%s", out.String())
	}
}

func TestViewPrinter_TerminalClears(t *testing.T) {
	var out bytes.Buffer
	p := &viewPrinter{out: &out, tty: true}
	p.Print(tracking.View{State: tracking.StateLoading})
	if !strings.HasPrefix(out.String(), clearScreen) {
		t.Errorf("output = %q, want clear-screen prefix", out.String())
	}
}

func TestIsTerminal_Buffer(t *testing.T) {
	if isTerminal(new(bytes.Buffer)) {
		t.Error("a buffer is not a terminal")
	}
}
