// Package engine is the session state machine of a typing test. It owns
// the typed buffer and both logs of one attempt, derives live metrics,
// flags anomalies and finalizes each session exactly once.
//
// A Machine is not safe for concurrent use: one goroutine calls Handle and
// the accessors. Gateway calls run through the Dispatcher and come back as
// events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/verte-zerg/neotype/internal/anomaly"
	"github.com/verte-zerg/neotype/internal/clock"
	"github.com/verte-zerg/neotype/internal/gateway"
	"github.com/verte-zerg/neotype/internal/keylog"
	"github.com/verte-zerg/neotype/internal/model"
	"github.com/verte-zerg/neotype/internal/stats"
)

// Defaults for Options fields left zero.
const (
	DefaultProgressEvery = 10
	DefaultHoldWindow    = 100 * time.Millisecond
)

// Options wires a Machine to its collaborators.
type Options struct {
	Gateway        gateway.Gateway
	Dispatcher     Dispatcher
	Clock          clock.Clock
	Logger         *slog.Logger
	RapidThreshold time.Duration
	// ProgressEvery is how many accepted events pass between progress
	// reports.
	ProgressEvery int
	// HoldWindow bounds how long after a press a release still counts as
	// that key's hold.
	HoldWindow time.Duration
}

// Machine drives one attempt at a time.
type Machine struct {
	gw            gateway.Gateway
	dispatcher    Dispatcher
	clock         clock.Clock
	logger        *slog.Logger
	detector      anomaly.Detector
	progressEvery int
	holdWindow    time.Duration

	gen       uint64
	sess      *session
	finishing map[uint64]*session
	observers map[int]Observer
	nextObs   int
}

type session struct {
	gen        uint64
	state      model.SessionState
	localID    string
	duration   int
	difficulty model.Difficulty
	sample     model.TextSample
	reference  []rune
	typed      []rune
	keys       keylog.Keystrokes
	suspicious keylog.Suspicious
	focusLost  int
	token      string
	accepted   int
	metrics    model.LiveMetrics

	textPending bool
	armPending  bool
	autoArm     bool

	armedAt     time.Time
	startedAt   time.Time
	lastPressAt time.Time

	finalizing atomic.Bool
	payload    model.Payload
	resolved   bool
}

// New returns an idle Machine. Gateway and Dispatcher are required.
func New(opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.HoldWindow <= 0 {
		opts.HoldWindow = DefaultHoldWindow
	}
	return &Machine{
		gw:            opts.Gateway,
		dispatcher:    opts.Dispatcher,
		clock:         opts.Clock,
		logger:        opts.Logger,
		detector:      anomaly.New(opts.RapidThreshold),
		progressEvery: opts.ProgressEvery,
		holdWindow:    opts.HoldWindow,
		sess:          &session{state: model.StateIdle},
		finishing:     map[uint64]*session{},
		observers:     map[int]Observer{},
	}
}

// Subscribe registers an observer and returns a function removing it.
func (m *Machine) Subscribe(fn Observer) func() {
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return func() { delete(m.observers, id) }
}

func (m *Machine) emit(sig Signal) {
	m.emitFor(m.sess, sig)
}

func (m *Machine) emitFor(s *session, sig Signal) {
	sig.State = s.state
	for i := 0; i < m.nextObs; i++ {
		if fn, ok := m.observers[i]; ok {
			fn(sig)
		}
	}
}

// Handle applies one event. Events invalid for the current state are
// ignored.
func (m *Machine) Handle(ev Event) {
	switch e := ev.(type) {
	case Start:
		m.start(e.Duration, e.Difficulty, true)
	case RequestText:
		if m.sess.state.Terminal() {
			m.reset()
		}
		if m.sess.state != model.StateIdle || m.sess.textPending {
			m.ignore(ev)
			return
		}
		m.requestText(e.Duration, e.Difficulty, false)
	case Arm:
		m.arm()
	case KeyPress:
		m.keyPress(e.Key, m.at(e.At))
	case KeyRelease:
		m.keyRelease(m.at(e.At))
	case Paste:
		m.paste(e.Text, m.at(e.At))
	case ContextMenu:
		m.logger.Debug("context menu rejected", "state", m.sess.state)
	case FocusLost:
		m.focusLost(m.at(e.At))
	case Tick:
		m.tick(m.at(e.At))
	case Stop:
		if m.sess.state != model.StateActive {
			m.ignore(ev)
			return
		}
		m.finalize(model.StateAborted, m.at(e.At))
	case textFetched:
		m.onText(e)
	case armed:
		m.onArmed(e)
	case progressReported:
		if e.err != nil {
			m.logger.Debug("progress report failed", "error", e.err)
		}
	case finalized:
		m.onFinalized(e)
	default:
		m.ignore(ev)
	}
}

func (m *Machine) ignore(ev Event) {
	m.logger.Debug("event ignored", "event", fmt.Sprintf("%T", ev), "state", m.sess.state)
}

func (m *Machine) at(t time.Time) time.Time {
	if t.IsZero() {
		return m.clock.Now()
	}
	return t
}

func (m *Machine) reset() {
	m.gen++
	m.sess = &session{gen: m.gen, state: model.StateIdle}
}

func (m *Machine) start(duration int, difficulty model.Difficulty, autoArm bool) {
	if m.sess.state == model.StateActive {
		m.finalize(model.StateAborted, m.clock.Now())
	}
	m.reset()
	m.requestText(duration, difficulty, autoArm)
}

func (m *Machine) requestText(duration int, difficulty model.Difficulty, autoArm bool) {
	s := m.sess
	s.duration = duration
	s.difficulty = difficulty
	s.autoArm = autoArm
	if duration <= 0 {
		m.emit(Signal{Kind: SignalTextFailed, Err: &gateway.TextFetchError{
			Reason: fmt.Sprintf("duration %d must be positive", duration),
		}})
		return
	}
	s.textPending = true
	gen := s.gen
	m.dispatcher.Go(func(ctx context.Context) Event {
		sample, err := m.gw.FetchText(ctx, duration, difficulty)
		return textFetched{gen: gen, sample: sample, err: err}
	})
}

func (m *Machine) onText(e textFetched) {
	s := m.sess
	if e.gen != s.gen || !s.textPending {
		m.ignore(e)
		return
	}
	s.textPending = false
	err := e.err
	if err == nil {
		err = gateway.ValidateSample(e.sample)
	}
	if err != nil {
		var fetchErr *gateway.TextFetchError
		if !errors.As(err, &fetchErr) {
			err = &gateway.TextFetchError{Reason: "fetch", Err: err}
		}
		m.logger.Warn("reference text unavailable", "error", err)
		m.emit(Signal{Kind: SignalTextFailed, Err: err})
		return
	}
	s.sample = e.sample
	s.state = model.StateTextAcquired
	m.emit(Signal{Kind: SignalTextAcquired, Text: e.sample})
	if s.autoArm {
		m.arm()
	}
}

func (m *Machine) arm() {
	s := m.sess
	if s.state != model.StateTextAcquired {
		m.ignore(Arm{})
		return
	}
	s.state = model.StateArmed
	s.reference = []rune(s.sample.Text)
	s.typed = make([]rune, 0, len(s.reference))
	s.localID = uuid.NewString()
	s.armedAt = m.clock.Now()
	s.metrics = stats.Live(nil, s.reference, 0, s.budget())
	s.armPending = true
	m.emit(Signal{Kind: SignalArmed, Text: s.sample, Metrics: s.metrics})

	gen, duration, text := s.gen, s.duration, s.sample.Text
	m.dispatcher.Go(func(ctx context.Context) Event {
		token, err := m.gw.Arm(ctx, duration, text)
		return armed{gen: gen, token: token, err: err}
	})
}

func (m *Machine) onArmed(e armed) {
	s := m.sess
	if e.gen != s.gen || !s.armPending {
		m.ignore(e)
		return
	}
	s.armPending = false
	if e.err != nil || e.token == "" {
		m.logger.Info("session running without backend", "error", e.err)
		return
	}
	if s.state.Terminal() {
		m.logger.Debug("token arrived after finalization")
		return
	}
	s.token = e.token
}

func (s *session) budget() time.Duration {
	return time.Duration(s.duration) * time.Second
}

func (s *session) elapsed(now time.Time) time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	if d := now.Sub(s.startedAt); d > 0 {
		return d
	}
	return 0
}

func (s *session) timestampMs(now time.Time) int64 {
	return now.Sub(s.armedAt).Milliseconds()
}

func (s *session) inProgress() bool {
	return s.state == model.StateArmed || s.state == model.StateActive
}

func (s *session) deadlinePassed(now time.Time) bool {
	return s.state == model.StateActive && s.elapsed(now) >= s.budget()
}

func (m *Machine) keyPress(key model.Key, now time.Time) {
	s := m.sess
	if !s.inProgress() {
		m.ignore(KeyPress{Key: key})
		return
	}
	if s.deadlinePassed(now) {
		m.finalize(model.StateCompleted, now)
		return
	}

	var ev model.KeystrokeEvent
	switch {
	case key.Kind == model.KeyBackspace:
		if len(s.typed) == 0 {
			return
		}
		ev = model.KeystrokeEvent{Key: key.String(), Backspace: true, Position: len(s.typed), Correct: true}
		s.typed = s.typed[:len(s.typed)-1]
	case key.Kind == model.KeyRune && unicode.IsPrint(key.Rune):
		if len(s.typed) >= len(s.reference) {
			return
		}
		pos := len(s.typed)
		s.typed = append(s.typed, key.Rune)
		ev = model.KeystrokeEvent{Key: key.String(), Position: pos, Correct: key.Rune == s.reference[pos]}
	default:
		return
	}

	if s.state == model.StateArmed {
		s.state = model.StateActive
		s.startedAt = now
		m.emit(Signal{Kind: SignalStarted})
	}
	ev.TimestampMs = s.timestampMs(now)
	stored := s.keys.Append(ev)
	// Hold times are only kept for printable keys.
	s.lastPressAt = now
	if ev.Backspace {
		s.lastPressAt = time.Time{}
	}
	s.accepted++

	if flagged, ok := m.detector.Inspect(stored); ok {
		s.suspicious.Append(flagged)
	}

	m.refresh(now)
	if s.state.Terminal() {
		return
	}
	if s.accepted%m.progressEvery == 0 {
		m.reportProgress(now)
	}
}

// refresh recomputes live metrics, emits them and applies both completion
// guards.
func (m *Machine) refresh(now time.Time) {
	s := m.sess
	elapsed := s.elapsed(now)
	s.metrics = stats.Live(s.typed, s.reference, elapsed, s.budget())
	m.emit(Signal{Kind: SignalMetrics, Metrics: s.metrics})
	if len(s.typed) == len(s.reference) || elapsed >= s.budget() {
		m.finalize(model.StateCompleted, now)
	}
}

func (m *Machine) reportProgress(now time.Time) {
	s := m.sess
	if s.token == "" {
		return
	}
	gen, token := s.gen, s.token
	p := gateway.Progress{
		TypedLength: len(s.typed),
		ElapsedMs:   s.elapsed(now).Milliseconds(),
		WPM:         s.metrics.WPM,
		Accuracy:    s.metrics.Accuracy,
		Keystrokes:  s.keys.Len(),
	}
	m.dispatcher.Go(func(ctx context.Context) Event {
		return progressReported{gen: gen, err: m.gw.ReportProgress(ctx, token, p)}
	})
}

func (m *Machine) keyRelease(now time.Time) {
	s := m.sess
	if s.state != model.StateActive || s.lastPressAt.IsZero() {
		return
	}
	hold := now.Sub(s.lastPressAt)
	if hold < 0 || hold > m.holdWindow {
		return
	}
	s.keys.SetLastHold(hold.Milliseconds())
}

func (m *Machine) paste(text string, now time.Time) {
	s := m.sess
	if !s.inProgress() {
		m.logger.Debug("paste rejected", "state", s.state)
		return
	}
	s.suspicious.Append(m.detector.Paste(s.timestampMs(now), len([]rune(text))))
	m.logger.Debug("paste rejected and recorded", "length", len(text))
}

func (m *Machine) focusLost(now time.Time) {
	s := m.sess
	if !s.inProgress() {
		return
	}
	s.focusLost++
	s.suspicious.Append(m.detector.FocusLost(s.timestampMs(now), s.focusLost))
}

func (m *Machine) tick(now time.Time) {
	if m.sess.state != model.StateActive {
		return
	}
	m.refresh(now)
}
