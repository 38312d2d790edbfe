package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// DefaultWindow is the idle gap that closes a session.
const DefaultWindow = 30 * time.Minute

// IsConversational reports whether an event is a chat message worth grouping.
// Join/leave notices, non-message kinds and blank texts are excluded. An
// empty kind is treated as "message" since not every export carries one.
func IsConversational(ev record.MessageEvent) bool {
	kind := strings.ToLower(strings.TrimSpace(ev.Kind))
	if kind != "" && kind != "message" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(ev.Subkind)) {
	case "channel_join", "channel_leave", "group_join", "group_leave":
		return false
	}
	return strings.TrimSpace(ev.Text) != ""
}

// FilterMessages returns the conversational events in input order.
func FilterMessages(events []record.MessageEvent) []record.MessageEvent {
	out := make([]record.MessageEvent, 0, len(events))
	for _, ev := range events {
		if IsConversational(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// SortEvents orders events by time. Events without a parsed time sort first;
// ties keep their input order.
func SortEvents(events []record.MessageEvent) []record.MessageEvent {
	out := make([]record.MessageEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Time, out[j].Time
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out
}

// Group sorts events and batches them into per-author sessions. An event
// joins the open session only if the author matches and both it and the
// session's last event have a time no more than window apart; an event
// without a time therefore always opens a new session. A non-positive
// window means DefaultWindow.
func Group(events []record.MessageEvent, window time.Duration) []record.Session {
	if window <= 0 {
		window = DefaultWindow
	}

	var (
		sessions []record.Session
		current  *record.Session
		lastTime *time.Time
	)
	for _, ev := range SortEvents(events) {
		if current != nil && ev.Author == current.Author &&
			ev.Time != nil && lastTime != nil && ev.Time.Sub(*lastTime) <= window {
			current.Messages = append(current.Messages, ev.Text)
			current.Timestamps = append(current.Timestamps, ev.Timestamp)
			current.EndTS = ev.Timestamp
			current.End = ev.Time
			lastTime = ev.Time
			continue
		}
		if current != nil {
			sessions = append(sessions, *current)
		}
		current = &record.Session{
			Author:     ev.Author,
			StartTS:    ev.Timestamp,
			EndTS:      ev.Timestamp,
			Start:      ev.Time,
			End:        ev.Time,
			Messages:   []string{ev.Text},
			Timestamps: []string{ev.Timestamp},
		}
		lastTime = ev.Time
	}
	if current != nil {
		sessions = append(sessions, *current)
	}
	return sessions
}
