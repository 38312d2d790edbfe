package extract

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/hurttlocker/rescuelog/internal/record"
)

func event(author, text string, at time.Time) record.MessageEvent {
	t := at
	return record.MessageEvent{
		Timestamp: at.Format(time.RFC3339),
		Time:      &t,
		Author:    author,
		Text:      text,
		Kind:      "message",
	}
}

func TestGroup_SplitsOnAuthorAndWindow(t *testing.T) {
	base := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []record.MessageEvent{
		event("A", "a1", base),
		event("A", "a2", base.Add(10*time.Minute)),
		event("B", "b1", base.Add(12*time.Minute)),
		event("A", "a3", base.Add(15*time.Minute)),
		event("A", "a4", base.Add(46*time.Minute)),
		event("A", "a5", base.Add(76*time.Minute)),
	}

	sessions := Group(events, 0)
	got := make([][]string, len(sessions))
	for i, s := range sessions {
		got[i] = s.Messages
	}
	want := [][]string{{"a1", "a2"}, {"b1"}, {"a3"}, {"a4", "a5"}}
	if len(got) != len(want) {
		t.Fatalf("sessions = %v, want %v", got, want)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("session %d = %v, want %v", i, got[i], want[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("session %d = %v, want %v", i, got[i], want[i])
			}
		}
	}
	if sessions[3].StartTS != events[4].Timestamp || sessions[3].EndTS != events[5].Timestamp {
		t.Errorf("session bounds = %s..%s", sessions[3].StartTS, sessions[3].EndTS)
	}
}

func TestGroup_CustomWindow(t *testing.T) {
	base := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []record.MessageEvent{
		event("A", "a1", base),
		event("A", "a2", base.Add(10*time.Minute)),
	}
	if n := len(Group(events, 5*time.Minute)); n != 2 {
		t.Fatalf("expected 2 sessions with 5m window, got %d", n)
	}
}

func TestGroup_MissingTimestampsNeverCoalesce(t *testing.T) {
	base := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []record.MessageEvent{
		event("A", "timed", base),
		{Author: "A", Text: "untimed 1", Kind: "message"},
		{Author: "A", Text: "untimed 2", Kind: "message", Timestamp: "garbage"},
	}
	sessions := Group(events, time.Hour)
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d: %+v", len(sessions), sessions)
	}
	if sessions[0].Messages[0] != "untimed 1" || sessions[1].Messages[0] != "untimed 2" {
		t.Errorf("untimed events should sort first in input order, got %+v", sessions)
	}
	if sessions[2].Messages[0] != "timed" {
		t.Errorf("timed event should come last, got %+v", sessions[2])
	}
}

func TestFilterMessages(t *testing.T) {
	events := []record.MessageEvent{
		{Author: "A", Text: "hello", Kind: "message"},
		{Author: "A", Text: "hi", Kind: ""},
		{Author: "A", Text: "joined", Kind: "message", Subkind: "channel_join"},
		{Author: "A", Text: "   ", Kind: "message"},
		{Author: "A", Text: "topic set", Kind: "system"},
	}
	got := FilterMessages(events)
	if len(got) != 2 || got[0].Text != "hello" || got[1].Text != "hi" {
		t.Fatalf("FilterMessages = %+v", got)
	}
}

func TestGroup_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	authors := []string{"A", "B", "C"}

	for round := 0; round < 50; round++ {
		var events []record.MessageEvent
		for i := 0; i < 40; i++ {
			author := authors[rng.Intn(len(authors))]
			if rng.Intn(10) == 0 {
				events = append(events, record.MessageEvent{Author: author, Text: fmt.Sprintf("%s|untimed-%d", author, i), Kind: "message"})
				continue
			}
			at := base.Add(time.Duration(rng.Intn(600)) * time.Minute)
			events = append(events, event(author, fmt.Sprintf("%s|%d", author, i), at))
		}

		sorted := SortEvents(events)
		sessions := Group(events, 30*time.Minute)

		var flat []string
		for _, s := range sessions {
			if len(s.Messages) == 0 {
				t.Fatalf("round %d: empty session", round)
			}
			for _, msg := range s.Messages {
				if !strings.HasPrefix(msg, s.Author+"|") {
					t.Fatalf("round %d: session of %s holds %q", round, s.Author, msg)
				}
			}
			for i := 1; i < len(s.Timestamps); i++ {
				prev := record.ParseTimestamp(s.Timestamps[i-1])
				cur := record.ParseTimestamp(s.Timestamps[i])
				if prev == nil || cur == nil || cur.Before(*prev) {
					t.Fatalf("round %d: session not time-monotonic: %v", round, s.Timestamps)
				}
			}
			flat = append(flat, s.Messages...)
		}

		if len(flat) != len(sorted) {
			t.Fatalf("round %d: %d messages grouped, want %d", round, len(flat), len(sorted))
		}
		for i := range sorted {
			if flat[i] != sorted[i].Text {
				t.Fatalf("round %d: message %d = %q, want %q", round, i, flat[i], sorted[i].Text)
			}
		}
	}
}
