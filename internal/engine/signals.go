package engine

import "github.com/verte-zerg/neotype/internal/model"

// SignalKind names a lifecycle notification.
type SignalKind string

// Lifecycle signals.
const (
	SignalTextAcquired SignalKind = "text_acquired"
	SignalTextFailed   SignalKind = "text_failed"
	SignalArmed        SignalKind = "session_armed"
	SignalStarted      SignalKind = "session_started"
	SignalMetrics      SignalKind = "metrics_updated"
	SignalCompleted    SignalKind = "session_completed"
	SignalAborted      SignalKind = "session_aborted"
)

// Signal is delivered to observers synchronously, on the goroutine that
// drives the machine. Only the fields relevant to Kind are set.
type Signal struct {
	Kind    SignalKind
	State   model.SessionState
	Text    model.TextSample
	Metrics model.LiveMetrics
	Payload model.Payload
	Err     error
}

// Observer receives lifecycle signals. Observers must not block; slow work
// belongs on another goroutine.
type Observer func(Signal)
