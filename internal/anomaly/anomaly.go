// Package anomaly classifies input events that suggest scripted or
// injected typing. Detections are advisory annotations only.
package anomaly

import (
	"time"

	"github.com/verte-zerg/neotype/internal/model"
)

// DefaultRapidThreshold is the inter-key interval below which a keystroke
// is physiologically implausible for a human typist.
const DefaultRapidThreshold = 50 * time.Millisecond

// Detector turns observed events into suspicious-event records. It holds
// no per-session state.
type Detector struct {
	RapidThreshold time.Duration
}

// New returns a Detector with the given rapid-typing threshold, or the
// default when threshold <= 0.
func New(threshold time.Duration) Detector {
	if threshold <= 0 {
		threshold = DefaultRapidThreshold
	}
	return Detector{RapidThreshold: threshold}
}

// Inspect checks an accepted keystroke. The first keystroke of a session
// has no interval and is never flagged; neither is backspace.
func (d Detector) Inspect(ev model.KeystrokeEvent) (model.SuspiciousEvent, bool) {
	if ev.Backspace || ev.IntervalMs == nil {
		return model.SuspiciousEvent{}, false
	}
	interval := *ev.IntervalMs
	if interval >= d.threshold().Milliseconds() {
		return model.SuspiciousEvent{}, false
	}
	meta := map[string]any{
		"interval_ms": interval,
		"key":         ev.Key,
		"position":    ev.Position,
	}
	if interval > 0 {
		meta["chars_per_second"] = 1000.0 / float64(interval)
	}
	return model.SuspiciousEvent{
		Kind:        model.RapidTyping,
		TimestampMs: ev.TimestampMs,
		Metadata:    meta,
	}, true
}

// Paste records an intercepted paste of length runes.
func (d Detector) Paste(timestampMs int64, length int) model.SuspiciousEvent {
	return model.SuspiciousEvent{
		Kind:        model.PasteAttempt,
		TimestampMs: timestampMs,
		Metadata:    map[string]any{"length": length},
	}
}

// FocusLost records loss of input focus; count is the running total
// including this one.
func (d Detector) FocusLost(timestampMs int64, count int) model.SuspiciousEvent {
	return model.SuspiciousEvent{
		Kind:        model.FocusLost,
		TimestampMs: timestampMs,
		Metadata:    map[string]any{"count": count},
	}
}

func (d Detector) threshold() time.Duration {
	if d.RapidThreshold <= 0 {
		return DefaultRapidThreshold
	}
	return d.RapidThreshold
}
