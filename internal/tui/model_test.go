package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/neotype/internal/engine"
	"github.com/verte-zerg/neotype/internal/gateway"
	"github.com/verte-zerg/neotype/internal/model"
)

type offlineGateway struct {
	text    string
	textErr error
}

func (g offlineGateway) FetchText(context.Context, int, model.Difficulty) (model.TextSample, error) {
	if g.textErr != nil {
		return model.TextSample{}, g.textErr
	}
	return model.TextSample{Text: g.text, WordCount: len(strings.Fields(g.text)), CharacterCount: len([]rune(g.text))}, nil
}

func (offlineGateway) Arm(context.Context, int, string) (string, error) {
	return "", gateway.ErrUnavailable
}

func (offlineGateway) ReportProgress(context.Context, string, gateway.Progress) error {
	return gateway.ErrUnavailable
}

func (offlineGateway) Finalize(context.Context, gateway.FinalizeRequest) (gateway.FinalizeResponse, error) {
	return gateway.FinalizeResponse{}, gateway.ErrUnavailable
}

type fakeRecorder struct {
	saved []model.Payload
	err   error
}

func (r *fakeRecorder) Record(_ context.Context, p model.Payload) (model.Aggregate, bool, error) {
	if r.err != nil {
		return model.Aggregate{}, false, r.err
	}
	r.saved = append(r.saved, p)
	return model.Aggregate{TotalTests: len(r.saved), CompletedTests: len(r.saved), AvgWPM: 50, AvgAccuracy: 90}, true, nil
}

func newTestModel(t *testing.T, text string, textErr error) (*Model, *fakeRecorder) {
	t.Helper()
	queue := engine.NewWorkQueue(context.Background())
	m := engine.New(engine.Options{
		Gateway:    offlineGateway{text: text, textErr: textErr},
		Dispatcher: queue,
	})
	rec := &fakeRecorder{}
	return NewModel(Options{
		Engine:     m,
		Queue:      queue,
		Recorder:   rec,
		Duration:   30,
		Difficulty: model.Medium,
		TickEvery:  time.Millisecond,
	}), rec
}

// run executes cmd and every command it leads to. Ticks are dropped so the
// loop ends once the engine settles.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	pending := []tea.Cmd{cmd}
	for len(pending) > 0 {
		cmd := pending[0]
		pending = pending[1:]
		if cmd == nil {
			continue
		}
		switch msg := cmd().(type) {
		case tea.BatchMsg:
			pending = append(pending, msg...)
		case tickMsg, nil:
		default:
			_, next := m.Update(msg)
			pending = append(pending, next)
		}
	}
}

func send(t *testing.T, m *Model, msg tea.Msg) {
	t.Helper()
	_, cmd := m.Update(msg)
	run(t, m, cmd)
}

func TestModelCompletesAndRecords(t *testing.T) {
	m, rec := newTestModel(t, "ab", nil)
	run(t, m, m.Init())
	if m.engine.State() != model.StateArmed {
		t.Fatalf("expected armed after init, got %s", m.engine.State())
	}

	send(t, m, keys("ab"))

	if m.result == nil {
		t.Fatalf("expected result after filling the buffer")
	}
	if m.result.Aborted || m.result.ServerConfirmed {
		t.Fatalf("expected completed local result, got %+v", m.result)
	}
	if len(rec.saved) != 1 || rec.saved[0].TypedText != "ab" {
		t.Fatalf("expected one recorded session, got %+v", rec.saved)
	}
	if !m.newBest || m.last == nil || m.agg.TotalTests != 1 {
		t.Fatalf("expected recorded state to be applied, got last=%v agg=%+v", m.last, m.agg)
	}
	if !strings.Contains(m.View(), "Test complete") {
		t.Fatalf("expected results view, got %q", m.View())
	}
}

func TestModelEscStopsActiveSession(t *testing.T) {
	m, rec := newTestModel(t, "abc", nil)
	run(t, m, m.Init())
	send(t, m, keys("a"))
	send(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.result == nil || !m.result.Aborted {
		t.Fatalf("expected aborted result, got %+v", m.result)
	}
	if len(rec.saved) != 1 || rec.saved[0].RecordEligible {
		t.Fatalf("expected ineligible aborted session to be recorded, got %+v", rec.saved)
	}
	if !strings.Contains(m.View(), "Test stopped") {
		t.Fatalf("expected stopped view")
	}
}

func TestModelPasteIsFlaggedNotTyped(t *testing.T) {
	m, _ := newTestModel(t, "abc", nil)
	run(t, m, m.Init())
	send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abc"), Paste: true})

	v := m.engine.View()
	if len(v.Typed) != 0 {
		t.Fatalf("paste must not reach the buffer, got %q", string(v.Typed))
	}
	if v.Suspicious != 1 {
		t.Fatalf("expected one suspicious event, got %d", v.Suspicious)
	}
}

func TestModelBlurCountsFocusLoss(t *testing.T) {
	m, _ := newTestModel(t, "abc", nil)
	run(t, m, m.Init())
	send(t, m, keys("a"))
	send(t, m, tea.BlurMsg{})

	if got := m.engine.View().FocusLostCount; got != 1 {
		t.Fatalf("expected focus loss to be counted, got %d", got)
	}
}

func TestModelRestartAfterResult(t *testing.T) {
	m, rec := newTestModel(t, "ab", nil)
	run(t, m, m.Init())
	send(t, m, keys("ab"))
	send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.result != nil {
		t.Fatalf("expected result cleared on restart")
	}
	if m.engine.State() != model.StateArmed {
		t.Fatalf("expected a fresh armed session, got %s", m.engine.State())
	}
	send(t, m, keys("ab"))
	if len(rec.saved) != 2 || rec.saved[0].LocalID == rec.saved[1].LocalID {
		t.Fatalf("expected two distinct sessions, got %+v", rec.saved)
	}
}

func TestModelTextFailure(t *testing.T) {
	m, _ := newTestModel(t, "", errors.New("boom"))
	run(t, m, m.Init())
	if m.errMsg == "" {
		t.Fatalf("expected error message")
	}
	if !strings.Contains(m.View(), "retry") {
		t.Fatalf("expected retry hint in view")
	}
}

func TestModelSaveFailureIsShown(t *testing.T) {
	m, rec := newTestModel(t, "ab", nil)
	rec.err = errors.New("disk full")
	run(t, m, m.Init())
	send(t, m, keys("ab"))
	if m.saveErr == "" || !strings.Contains(m.View(), "not saved") {
		t.Fatalf("expected save failure in view")
	}
}
