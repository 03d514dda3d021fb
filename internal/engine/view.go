package engine

import "github.com/verte-zerg/neotype/internal/model"

// View is a read-only snapshot for rendering.
type View struct {
	State          model.SessionState
	Duration       int
	Difficulty     model.Difficulty
	Reference      []rune
	Typed          []rune
	Metrics        model.LiveMetrics
	FocusLostCount int
	Suspicious     int
	Degraded       bool
	TextPending    bool
	Result         *model.Payload
}

// View returns the current session snapshot. Result is set once the
// session has been finalized and resolved.
func (m *Machine) View() View {
	s := m.sess
	v := View{
		State:          s.state,
		Duration:       s.duration,
		Difficulty:     s.difficulty,
		Reference:      append([]rune(nil), s.reference...),
		Typed:          append([]rune(nil), s.typed...),
		Metrics:        s.metrics,
		FocusLostCount: s.focusLost,
		Suspicious:     s.suspicious.Len(),
		Degraded:       s.state >= model.StateArmed && s.token == "" && !s.armPending,
		TextPending:    s.textPending,
	}
	if s.resolved {
		p := s.payload
		v.Result = &p
	}
	return v
}

// State returns the session state.
func (m *Machine) State() model.SessionState {
	return m.sess.state
}

// Token returns the backend token, empty while degraded.
func (m *Machine) Token() string {
	return m.sess.token
}

// Keystrokes returns the keystroke log of the current session.
func (m *Machine) Keystrokes() []model.KeystrokeEvent {
	return m.sess.keys.Snapshot()
}

// SuspiciousEvents returns the anti-cheat log of the current session.
func (m *Machine) SuspiciousEvents() []model.SuspiciousEvent {
	return m.sess.suspicious.Snapshot()
}
