package statsui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/neotype/internal/model"
)

type fakeSource struct {
	sessions []model.SessionRecord
	agg      model.Aggregate
	err      error
	lastCfg  model.StatsConfig
}

func (f *fakeSource) ListSessions(_ context.Context, cfg model.StatsConfig) ([]model.SessionRecord, error) {
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	var out []model.SessionRecord
	for _, s := range f.sessions {
		if cfg.Duration > 0 && s.Duration != cfg.Duration {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSource) Aggregate(context.Context) (model.Aggregate, error) {
	return f.agg, nil
}

func sampleSource() *fakeSource {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &fakeSource{
		sessions: []model.SessionRecord{
			{LocalID: "a", EndedAt: base, Duration: 30, Difficulty: model.Easy, WPM: 40, Accuracy: 95, ServerConfirmed: true},
			{LocalID: "b", EndedAt: base.Add(time.Minute), Duration: 60, Difficulty: model.Hard, WPM: 55, Accuracy: 97, SuspiciousCount: 2},
		},
		agg: model.Aggregate{TotalTests: 2, CompletedTests: 1, AvgWPM: 40, AvgAccuracy: 95, BestWPM: map[int]float64{30: 40}},
	}
}

func TestHistoryRowsNewestFirst(t *testing.T) {
	rows := historyRows(sampleSource().sessions)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "60s" || rows[0][6] != "local" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}
	if rows[1][6] != "confirmed" {
		t.Fatalf("unexpected second row: %v", rows[1])
	}
}

func TestDurationFilterCycles(t *testing.T) {
	src := sampleSource()
	m := NewModel(src, model.StatsConfig{CurveWindow: 5})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if src.lastCfg.Duration != 15 {
		t.Fatalf("expected 15s filter, got %d", src.lastCfg.Duration)
	}
	if len(m.report.Sessions) != 0 {
		t.Fatalf("expected no 15s sessions, got %d", len(m.report.Sessions))
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if len(m.report.Sessions) != 1 || m.report.Sessions[0].LocalID != "a" {
		t.Fatalf("expected the 30s session, got %+v", m.report.Sessions)
	}
	if !strings.Contains(m.View(), "duration=30s") {
		t.Fatalf("expected filter summary in view")
	}
}

func TestOverviewShowsAggregate(t *testing.T) {
	m := NewModel(sampleSource(), model.StatsConfig{CurveWindow: 5})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	for _, want := range []string{"Overview", "Best WPM", "Avg WPM", "40.0"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestLoadErrorIsShown(t *testing.T) {
	src := sampleSource()
	src.err = errors.New("db locked")
	m := NewModel(src, model.StatsConfig{})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	if !strings.Contains(m.View(), "db locked") {
		t.Fatalf("expected error in footer")
	}
}

func TestNextDurationUnknownResets(t *testing.T) {
	if got := nextDuration(45); got != 0 {
		t.Fatalf("expected reset to all, got %d", got)
	}
	if got := nextDuration(120); got != 0 {
		t.Fatalf("expected wrap to all, got %d", got)
	}
}
