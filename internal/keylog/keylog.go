// Package keylog holds the append-only keystroke and suspicious-event
// records of a single test attempt.
package keylog

import "github.com/verte-zerg/neotype/internal/model"

// Keystrokes is an ordered, append-only keystroke record. Timestamps are
// kept non-decreasing: a reading older than the tail is clamped to it.
type Keystrokes struct {
	events []model.KeystrokeEvent
}

// Append records ev, filling IntervalMs from the previous event. The
// first event has a nil interval. The stored copy is returned.
func (k *Keystrokes) Append(ev model.KeystrokeEvent) model.KeystrokeEvent {
	ev.IntervalMs = nil
	if n := len(k.events); n > 0 {
		prev := k.events[n-1].TimestampMs
		if ev.TimestampMs < prev {
			ev.TimestampMs = prev
		}
		interval := ev.TimestampMs - prev
		ev.IntervalMs = &interval
	}
	k.events = append(k.events, ev)
	return ev
}

// Len returns the number of logged events.
func (k *Keystrokes) Len() int {
	return len(k.events)
}

// Last returns the most recent event.
func (k *Keystrokes) Last() (model.KeystrokeEvent, bool) {
	if len(k.events) == 0 {
		return model.KeystrokeEvent{}, false
	}
	return k.events[len(k.events)-1], true
}

// SetLastHold records how long the most recent key was held. It is the
// only annotation allowed after append, and only once.
func (k *Keystrokes) SetLastHold(holdMs int64) bool {
	n := len(k.events)
	if n == 0 || k.events[n-1].HoldMs != nil {
		return false
	}
	k.events[n-1].HoldMs = &holdMs
	return true
}

// Snapshot returns a copy safe to hand to readers.
func (k *Keystrokes) Snapshot() []model.KeystrokeEvent {
	out := make([]model.KeystrokeEvent, len(k.events))
	copy(out, k.events)
	return out
}

// Suspicious is the append-only anti-cheat record.
type Suspicious struct {
	events []model.SuspiciousEvent
}

// Append records ev. Entries are never edited or removed.
func (s *Suspicious) Append(ev model.SuspiciousEvent) {
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	s.events = append(s.events, ev)
}

// Len returns the number of logged events.
func (s *Suspicious) Len() int {
	return len(s.events)
}

// Count returns the number of events of the given kind.
func (s *Suspicious) Count(kind model.SuspiciousKind) int {
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Snapshot returns a copy safe to hand to readers.
func (s *Suspicious) Snapshot() []model.SuspiciousEvent {
	out := make([]model.SuspiciousEvent, len(s.events))
	copy(out, s.events)
	return out
}
