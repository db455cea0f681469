// Package chat keeps the transcript of one service conversation in sync with
// the server: polled history and locally sent messages merged into a single
// id-keyed, ordered stream.
package chat

import (
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/zulandar/servicetrack/internal/api"
)

// Sender classifies who wrote a message, relative to the viewer.
type Sender string

const (
	SenderSelf         Sender = "self"
	SenderCounterparty Sender = "counterparty"
)

// Fallback previews for non-text messages.
const (
	PreviewLocation = "Shared a location"
	PreviewImage    = "Sent an image"
)

// Message is a normalized transcript entry.
type Message struct {
	ID       string         `json:"id"`
	Sender   Sender         `json:"sender"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Preview  string         `json:"preview"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
	Status   string         `json:"status"`
}

// Unread reports whether the viewer has yet to read the message.
func (m Message) Unread() bool {
	return m.Sender != SenderSelf && m.Status != api.DeliveryRead
}

// Normalize converts a raw server record into a Message as seen by viewerID.
func Normalize(raw api.RawMessage, viewerID string) Message {
	m := Message{
		ID:       raw.ID,
		Sender:   SenderCounterparty,
		Type:     strings.ToLower(strings.TrimSpace(raw.Type)),
		Content:  raw.Content,
		Metadata: maps.Clone(raw.Metadata),
		At:       raw.CreatedAt,
		Status:   raw.Status,
	}
	if raw.SenderID != "" && raw.SenderID == viewerID {
		m.Sender = SenderSelf
	}
	if m.Type == "" {
		m.Type = api.MessageText
	}
	if m.Status == "" {
		m.Status = api.DeliverySent
	}

	switch m.Type {
	case api.MessageLocation:
		m.Preview = firstString(m.Metadata, "label", "address")
		if m.Preview == "" {
			m.Preview = PreviewLocation
		}
	case api.MessageImage:
		m.Preview = firstString(m.Metadata, "caption")
		if m.Preview == "" {
			m.Preview = PreviewImage
		}
	default:
		m.Preview = m.Content
	}
	return m
}

// firstString returns the first non-empty string value among keys.
func firstString(md map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := md[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// ordered returns the messages as a slice sorted by timestamp, then id.
func ordered(set map[string]Message) []Message {
	out := make([]Message, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		m.Metadata = maps.Clone(m.Metadata)
		out[i] = m
	}
	return out
}
