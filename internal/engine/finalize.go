package engine

import (
	"context"
	"time"

	"github.com/verte-zerg/neotype/internal/gateway"
	"github.com/verte-zerg/neotype/internal/model"
	"github.com/verte-zerg/neotype/internal/stats"
)

// finalize moves the session to a terminal state and scores it. Only the
// first caller per session gets past the guard; the gateway is asked at
// most once.
func (m *Machine) finalize(terminal model.SessionState, now time.Time) {
	s := m.sess
	if !s.finalizing.CompareAndSwap(false, true) {
		return
	}
	s.state = terminal

	elapsed := s.elapsed(now)
	s.metrics = stats.Live(s.typed, s.reference, elapsed, s.budget())
	s.payload = model.Payload{
		LocalID:        s.localID,
		Token:          s.token,
		Duration:       s.duration,
		Difficulty:     s.difficulty,
		ReferenceText:  string(s.reference),
		TypedText:      string(s.typed),
		ElapsedSeconds: elapsed.Seconds(),
		FocusLostCount: s.focusLost,
		Keystrokes:     s.keys.Snapshot(),
		Suspicious:     s.suspicious.Snapshot(),
		Result:         stats.Final(s.typed, s.reference, elapsed),
		RecordEligible: terminal == model.StateCompleted,
		Degraded:       s.token == "",
		Aborted:        terminal == model.StateAborted,
		StartedAt:      s.startedAt,
		EndedAt:        now,
	}

	if s.token == "" {
		m.resolve(s, gateway.FinalizeResponse{}, gateway.ErrUnavailable)
		return
	}
	m.finishing[s.gen] = s
	gen := s.gen
	req := gateway.FinalizeRequest{
		Token:          s.token,
		TypedText:      s.payload.TypedText,
		ElapsedSeconds: s.payload.ElapsedSeconds,
		FocusLostCount: s.focusLost,
		Suspicious:     s.payload.Suspicious,
		Keystrokes:     s.payload.Keystrokes,
	}
	m.dispatcher.Go(func(ctx context.Context) Event {
		resp, err := m.gw.Finalize(ctx, req)
		return finalized{gen: gen, resp: resp, err: err}
	})
}

func (m *Machine) onFinalized(e finalized) {
	s, ok := m.finishing[e.gen]
	if !ok {
		m.ignore(e)
		return
	}
	delete(m.finishing, e.gen)
	m.resolve(s, e.resp, e.err)
}

// resolve settles the payload with the backend result, or with the local
// estimate when the backend could not confirm it, and announces it. A
// session replaced by Start while its finalize call was in flight is still
// announced when the call returns.
func (m *Machine) resolve(s *session, resp gateway.FinalizeResponse, err error) {
	if s.resolved {
		return
	}
	s.resolved = true

	if err == nil {
		s.payload.Result = resp.Result
		s.payload.ServerConfirmed = true
		s.payload.IsNewRecord = resp.IsNewRecord && s.payload.RecordEligible
	} else {
		if s.token != "" {
			m.logger.Warn("finalize failed, keeping local result", "error", err)
		}
		s.payload.ServerConfirmed = false
		s.payload.IsNewRecord = false
	}

	kind := SignalCompleted
	if s.state == model.StateAborted {
		kind = SignalAborted
	}
	m.emitFor(s, Signal{Kind: kind, Payload: s.payload, Metrics: s.metrics})
}
