// Package tui provides the Bubble Tea typing interface.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/neotype/internal/engine"
	"github.com/verte-zerg/neotype/internal/model"
)

// DefaultTickEvery is how often the countdown and live metrics refresh.
const DefaultTickEvery = 100 * time.Millisecond

const visibleLines = 3

// Recorder persists finalized sessions.
type Recorder interface {
	Record(ctx context.Context, p model.Payload) (model.Aggregate, bool, error)
}

// Options wires the typing UI to an engine.
type Options struct {
	Engine     *engine.Machine
	Queue      *engine.WorkQueue
	Recorder   Recorder
	Logger     *slog.Logger
	Duration   int
	Difficulty model.Difficulty
	TickEvery  time.Duration
	// Aggregate seeds the footer with stored history.
	Aggregate model.Aggregate
}

type tickMsg time.Time

type engineMsg struct {
	ev engine.Event
}

type recordedMsg struct {
	localID string
	agg     model.Aggregate
	newBest bool
	err     error
}

// Model implements the Bubble Tea typing UI.
type Model struct {
	engine     *engine.Machine
	queue      *engine.WorkQueue
	recorder   Recorder
	logger     *slog.Logger
	duration   int
	difficulty model.Difficulty
	tickEvery  time.Duration

	width  int
	height int
	bar    progress.Model

	signals []engine.Signal
	metrics model.LiveMetrics
	result  *model.Payload
	newBest bool
	errMsg  string

	agg     model.Aggregate
	last    *model.Payload
	saveErr string
}

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	cursorStyle      = pendingStyle.Underline(true)
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	titleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	valueStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	warnStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// NewModel constructs a typing TUI model. The engine's observers are fed
// through the model, so one engine backs one model.
func NewModel(opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TickEvery <= 0 {
		opts.TickEvery = DefaultTickEvery
	}
	m := &Model{
		engine:     opts.Engine,
		queue:      opts.Queue,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		duration:   opts.Duration,
		difficulty: opts.Difficulty,
		tickEvery:  opts.TickEvery,
		bar:        progress.New(progress.WithSolidFill("#C89A3A"), progress.WithoutPercentage()),
		agg:        opts.Aggregate,
	}
	m.engine.Subscribe(func(sig engine.Signal) {
		m.signals = append(m.signals, sig)
	})
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.handle(engine.Start{Duration: m.duration, Difficulty: m.difficulty}), m.tick())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, m.contentWidth())
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.BlurMsg:
		return m, m.handle(engine.FocusLost{})
	case tickMsg:
		var cmd tea.Cmd
		if m.engine.State() == model.StateActive {
			cmd = m.handle(engine.Tick{At: time.Time(msg)})
		}
		return m, tea.Batch(cmd, m.tick())
	case engineMsg:
		return m, m.handle(msg.ev)
	case recordedMsg:
		m.onRecorded(msg)
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	state := m.engine.State()
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyEsc:
		if state == model.StateActive {
			return m.handle(engine.Stop{})
		}
		return tea.Quit
	}

	if m.result != nil || m.errMsg != "" {
		switch msg.String() {
		case "enter", "tab", "r":
			return m.restart()
		case "q":
			return tea.Quit
		}
		return nil
	}
	if state != model.StateArmed && state != model.StateActive {
		return nil
	}

	if msg.Paste {
		return m.handle(engine.Paste{Text: string(msg.Runes)})
	}
	switch msg.Type {
	case tea.KeyBackspace:
		return m.handle(engine.KeyPress{Key: model.Backspace})
	case tea.KeySpace:
		return m.handle(engine.KeyPress{Key: model.RuneKey(' ')})
	case tea.KeyRunes:
		cmds := make([]tea.Cmd, 0, len(msg.Runes))
		for _, r := range msg.Runes {
			cmds = append(cmds, m.handle(engine.KeyPress{Key: model.RuneKey(r)}))
		}
		return tea.Batch(cmds...)
	default:
		return m.handle(engine.KeyPress{Key: model.ControlKey(msg.String())})
	}
}

func (m *Model) restart() tea.Cmd {
	m.result = nil
	m.newBest = false
	m.errMsg = ""
	m.saveErr = ""
	return m.handle(engine.Start{Duration: m.duration, Difficulty: m.difficulty})
}

// handle feeds ev to the engine, applies the signals it raised and turns
// the gateway calls it queued into commands.
func (m *Model) handle(ev engine.Event) tea.Cmd {
	m.engine.Handle(ev)

	var cmds []tea.Cmd
	signals := m.signals
	m.signals = nil
	for _, sig := range signals {
		if cmd := m.apply(sig); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	for _, job := range m.queue.Take() {
		job := job
		cmds = append(cmds, func() tea.Msg {
			return engineMsg{ev: job()}
		})
	}
	return tea.Batch(cmds...)
}

func (m *Model) apply(sig engine.Signal) tea.Cmd {
	switch sig.Kind {
	case engine.SignalTextFailed:
		m.errMsg = sig.Err.Error()
	case engine.SignalArmed, engine.SignalMetrics:
		m.metrics = sig.Metrics
	case engine.SignalCompleted, engine.SignalAborted:
		p := sig.Payload
		if v := m.engine.View(); v.Result != nil && v.Result.LocalID == p.LocalID {
			m.metrics = sig.Metrics
			m.result = &p
		}
		return m.record(p)
	}
	return nil
}

func (m *Model) record(p model.Payload) tea.Cmd {
	if m.recorder == nil {
		return nil
	}
	recorder := m.recorder
	return func() tea.Msg {
		agg, newBest, err := recorder.Record(context.Background(), p)
		return recordedMsg{localID: p.LocalID, agg: agg, newBest: newBest, err: err}
	}
}

func (m *Model) onRecorded(msg recordedMsg) {
	if msg.err != nil {
		m.logger.Error("failed to save session", "local_id", msg.localID, "error", msg.err)
		m.saveErr = "session not saved"
		return
	}
	m.agg = msg.agg
	if m.result != nil && m.result.LocalID == msg.localID {
		m.newBest = msg.newBest
		m.last = m.result
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.tickEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View implements tea.Model.
func (m *Model) View() string {
	var content string
	switch {
	case m.errMsg != "":
		content = warnStyle.Render(m.errMsg) + "\n\n" + footerStyle.Render("enter retry · q quit")
	case m.result != nil:
		content = m.renderResult()
	default:
		v := m.engine.View()
		if len(v.Reference) == 0 {
			content = footerStyle.Render("fetching text...")
			break
		}
		lines := wrapCells(styleText(v.Reference, v.Typed), m.contentWidth())
		content = m.bar.ViewAs(m.metrics.Progress/100) + "\n\n" + renderWindow(lines, visibleLines)
	}
	if m.width == 0 || m.height == 0 {
		return content
	}
	content = lipgloss.NewStyle().Width(m.contentWidth()).Render(content)
	footer := m.renderFooter()
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 0
	}
	return max(1, int(float64(m.width)*0.70))
}

func (m *Model) renderResult() string {
	p := m.result
	title := "Test complete"
	if p.Aborted {
		title = "Test stopped"
	}
	lines := []string{
		titleStyle.Render(title),
		"",
		fmt.Sprintf("WPM       %s", valueStyle.Render(fmt.Sprintf("%.0f", p.Result.WPM))),
		fmt.Sprintf("Accuracy  %s", valueStyle.Render(fmt.Sprintf("%.1f%%", p.Result.Accuracy))),
		fmt.Sprintf("Time      %.1fs", p.ElapsedSeconds),
		fmt.Sprintf("Chars     %d correct · %d incorrect", p.Result.CorrectChars, p.Result.IncorrectChars),
	}
	if n := len(p.Suspicious); n > 0 {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("Flagged   %d suspicious events", n)))
	}
	switch {
	case p.IsNewRecord:
		lines = append(lines, titleStyle.Render("New personal record!"))
	case m.newBest:
		lines = append(lines, titleStyle.Render("New local best!"))
	}
	if !p.ServerConfirmed {
		lines = append(lines, footerStyle.Render("offline result, not submitted"))
	}
	if m.saveErr != "" {
		lines = append(lines, warnStyle.Render(m.saveErr))
	}
	lines = append(lines, "", footerStyle.Render("enter restart · q quit"))
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	var segments []string
	if st := m.engine.State(); st == model.StateArmed || st == model.StateActive {
		segments = append(segments,
			fmt.Sprintf("%.0fs", m.metrics.RemainingSeconds),
			fmt.Sprintf("%d WPM", m.metrics.WPM),
			fmt.Sprintf("%.1f%%", m.metrics.Accuracy),
		)
		if m.engine.View().Degraded {
			segments = append(segments, "offline")
		}
	}
	if m.last != nil {
		segments = append(segments, fmt.Sprintf("Last %.1f WPM · %.1f%%", m.last.Result.WPM, m.last.Result.Accuracy))
	}
	if m.agg.CompletedTests > 0 {
		segments = append(segments, fmt.Sprintf("Avg %.1f WPM · %.1f%%", m.agg.AvgWPM, m.agg.AvgAccuracy))
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}
