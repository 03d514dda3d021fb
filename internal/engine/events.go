package engine

import (
	"time"

	"github.com/verte-zerg/neotype/internal/gateway"
	"github.com/verte-zerg/neotype/internal/model"
)

// Event is anything the machine reacts to: host input, clock ticks and
// completions of gateway calls.
type Event interface {
	isEvent()
}

// Start discards the current attempt and begins a new one. The session
// arms itself as soon as the text arrives.
type Start struct {
	Duration   int
	Difficulty model.Difficulty
}

// RequestText fetches a reference text without arming.
type RequestText struct {
	Duration   int
	Difficulty model.Difficulty
}

// Arm registers the acquired text and readies the session for typing.
type Arm struct{}

// KeyPress is a key going down. A zero At means now.
type KeyPress struct {
	Key model.Key
	At  time.Time
}

// KeyRelease is the most recent key coming back up.
type KeyRelease struct {
	At time.Time
}

// Paste is an intercepted clipboard insertion.
type Paste struct {
	Text string
	At   time.Time
}

// ContextMenu is a context-menu invocation on the input.
type ContextMenu struct{}

// FocusLost reports that the input lost focus.
type FocusLost struct {
	At time.Time
}

// Tick re-evaluates the deadline and refreshes metrics.
type Tick struct {
	At time.Time
}

// Stop ends an active test early.
type Stop struct {
	At time.Time
}

type textFetched struct {
	gen    uint64
	sample model.TextSample
	err    error
}

type armed struct {
	gen   uint64
	token string
	err   error
}

type progressReported struct {
	gen uint64
	err error
}

type finalized struct {
	gen  uint64
	resp gateway.FinalizeResponse
	err  error
}

func (Start) isEvent()            {}
func (RequestText) isEvent()      {}
func (Arm) isEvent()              {}
func (KeyPress) isEvent()         {}
func (KeyRelease) isEvent()       {}
func (Paste) isEvent()            {}
func (ContextMenu) isEvent()      {}
func (FocusLost) isEvent()        {}
func (Tick) isEvent()             {}
func (Stop) isEvent()             {}
func (textFetched) isEvent()      {}
func (armed) isEvent()            {}
func (progressReported) isEvent() {}
func (finalized) isEvent()        {}
