package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zulandar/servicetrack/internal/chat"
	"github.com/zulandar/servicetrack/internal/tracking"
)

// maxRenderedMessages is how many of the latest chat messages renderView shows.
const maxRenderedMessages = 5

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

// renderView writes a plain-text rendition of v.
func renderView(w io.Writer, v tracking.View) {
	switch v.State {
	case tracking.StateLoading:
		fmt.Fprintln(w, "Loading tracking information...")
		if v.Notice != "" {
			fmt.Fprintf(w, "! %s\n", v.Notice)
		}
		return
	case tracking.StateEmpty:
		fmt.Fprintln(w, v.EmptyMessage)
		return
	case tracking.StateClosed:
		fmt.Fprintln(w, "Tracking stopped.")
		return
	}

	title := v.RequestID
	if v.Request != nil && v.Request.Title != "" {
		title = fmt.Sprintf("%s (%s)", v.Request.Title, v.RequestID)
	}
	fmt.Fprintf(w, "Request %s: %s\n", title, v.Progress.Status)

	if tech := v.Technician; tech != nil {
		fmt.Fprintf(w, "Technician: %s\n", technicianLine(tech))
	} else {
		fmt.Fprintln(w, "Technician: not assigned yet")
	}

	fmt.Fprintf(w, "Progress: %d/%d (%d%%), current: %s\n",
		v.Progress.CompletedCount, len(v.Progress.Phases), v.Progress.Percent(), v.Progress.CurrentName())
	for i, p := range v.Progress.Phases {
		mark := " "
		switch {
		case p.Done():
			mark = "x"
		case i == v.Progress.Current:
			mark = ">"
		}
		line := fmt.Sprintf("  [%s] %s", mark, p.Name)
		if p.Notes != "" {
			line += "  " + p.Notes
		}
		fmt.Fprintln(w, line)
	}

	if len(v.Messages) > 0 {
		fmt.Fprintf(w, "Messages (%d, %d unread):\n", len(v.Messages), v.Unread)
		start := max(0, len(v.Messages)-maxRenderedMessages)
		for _, m := range v.Messages[start:] {
			fmt.Fprintf(w, "  %s\n", messageLine(m))
		}
	}

	if len(v.Notifications) > 0 {
		fmt.Fprintln(w, "Notifications:")
		for _, n := range v.Notifications {
			fmt.Fprintf(w, "  * %s: %s\n", n.Title, n.Message)
		}
	}

	if v.Notice != "" {
		fmt.Fprintf(w, "! %s\n", v.Notice)
	}
}

func technicianLine(t *tracking.TechnicianInfo) string {
	parts := []string{t.Name}
	if t.Rating > 0 {
		parts = append(parts, fmt.Sprintf("rated %.1f", t.Rating))
	}
	if t.HasDistance {
		parts = append(parts, t.DistanceLabel()+" away")
	}
	if t.HasETA {
		parts = append(parts, fmt.Sprintf("ETA %d min", t.ETAMinutes()))
	}
	if t.Phone != "" {
		parts = append(parts, t.Phone)
	}
	return strings.Join(parts, ", ")
}

func messageLine(m chat.Message) string {
	who := "them"
	if m.Sender == chat.SenderSelf {
		who = "me"
	}
	text := m.Preview
	if text == "" {
		text = m.Content
	}
	return fmt.Sprintf("%-4s %s  %s", who, m.At.Local().Format("15:04"), truncate(text, 60))
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// formatAgo renders the time elapsed since t, like "2h 15m ago".
func formatAgo(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h >= 24 {
		return fmt.Sprintf("%dd %dh ago", h/24, h%24)
	}
	return fmt.Sprintf("%dh %dm ago", h, m)
}
