package viewserver

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/servicetrack/internal/tracking"
)

// HeartbeatInterval is how often an idle event stream sends a heartbeat.
const HeartbeatInterval = 15 * time.Second

// Hub fans view updates out to event stream subscribers. Slow subscribers
// only ever see the latest view.
type Hub struct {
	mu   sync.Mutex
	subs map[chan tracking.View]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan tracking.View]struct{})}
}

// Publish delivers v to every subscriber without blocking. It has the
// signature of tracking.SessionOpts.OnChange.
func (h *Hub) Publish(v tracking.View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Subscribe registers a subscriber. The returned func unregisters it.
func (h *Hub) Subscribe() (<-chan tracking.View, func()) {
	ch := make(chan tracking.View, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// handleEvents streams the current view, then every published update.
func handleEvents(t Tracker, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "view", t.View())
		c.Writer.Flush()

		if hub == nil {
			return
		}
		updates, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(HeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case v := <-updates:
				writeSSE(c.Writer, "view", v)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
