package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/neotype/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "neotype.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func testPayload(i int, wpm float64) model.Payload {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	interval := int64(120)
	return model.Payload{
		LocalID:        fmt.Sprintf("local-%d", i),
		Duration:       30,
		Difficulty:     model.Easy,
		ReferenceText:  "the cat",
		TypedText:      "the cat",
		ElapsedSeconds: 6,
		Keystrokes: []model.KeystrokeEvent{
			{Key: "t", TimestampMs: 0, Position: 0, Correct: true},
			{Key: "h", TimestampMs: 120, Position: 1, Correct: true, IntervalMs: &interval},
		},
		Suspicious: []model.SuspiciousEvent{
			{Kind: model.RapidTyping, TimestampMs: 120, Metadata: map[string]any{"interval_ms": 10}},
		},
		Result:          model.FinalResult{WPM: wpm, Accuracy: 100, TotalChars: 7, CorrectChars: 7},
		ServerConfirmed: true,
		RecordEligible:  true,
		StartedAt:       start,
		EndedAt:         start.Add(6 * time.Second),
	}
}

func TestRecordSessionUpdatesAggregate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	agg, newBest, err := st.RecordSession(ctx, testPayload(0, 80), DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("record session: %v", err)
	}
	if !newBest {
		t.Fatalf("expected first confirmed session to be a new best")
	}
	if agg.TotalTests != 1 || agg.CompletedTests != 1 {
		t.Fatalf("unexpected counts: %+v", agg)
	}

	_, newBest, err = st.RecordSession(ctx, testPayload(1, 60), DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("record session: %v", err)
	}
	if newBest {
		t.Fatalf("slower session must not be a new best")
	}

	loaded, err := st.Aggregate(ctx)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if loaded.TotalTests != 2 || loaded.CompletedTests != 2 {
		t.Fatalf("unexpected loaded counts: %+v", loaded)
	}
	best, ok, err := st.BestWPM(ctx, 30)
	if err != nil {
		t.Fatalf("best wpm: %v", err)
	}
	if !ok || best != 80 {
		t.Fatalf("expected best 80, got %v (ok=%v)", best, ok)
	}
	if _, ok, err := st.BestWPM(ctx, 60); err != nil || ok {
		t.Fatalf("expected no best for 60s, got ok=%v err=%v", ok, err)
	}
}

func TestRecordSessionUnconfirmedSkipsAverages(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	p := testPayload(0, 90)
	p.ServerConfirmed = false
	agg, newBest, err := st.RecordSession(ctx, p, DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("record session: %v", err)
	}
	if newBest {
		t.Fatalf("unconfirmed session must not set a record")
	}
	if agg.TotalTests != 1 || agg.CompletedTests != 0 || agg.AvgWPM != 0 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	sessions, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ServerConfirmed {
		t.Fatalf("expected one local-only session, got %+v", sessions)
	}
}

func TestRecordSessionPrunesHistory(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := st.RecordSession(ctx, testPayload(i, 50), 3); err != nil {
			t.Fatalf("record session %d: %v", i, err)
		}
	}
	sessions, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions after prune, got %d", len(sessions))
	}
	if sessions[0].LocalID != "local-2" || sessions[2].LocalID != "local-4" {
		t.Fatalf("expected newest sessions kept, got %+v", sessions)
	}
	agg, err := st.Aggregate(ctx)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.TotalTests != 5 {
		t.Fatalf("aggregate must count pruned sessions, got %d", agg.TotalTests)
	}
}

func TestListSessionsFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p := testPayload(i, 40)
		if i%2 == 1 {
			p.Duration = 60
		}
		if _, _, err := st.RecordSession(ctx, p, DefaultHistoryLimit); err != nil {
			t.Fatalf("record session: %v", err)
		}
	}

	sessions, err := st.ListSessions(ctx, model.StatsConfig{Duration: 60})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions for 60s, got %d", len(sessions))
	}

	since := time.Date(2024, 1, 1, 12, 2, 0, 0, time.UTC)
	sessions, err = st.ListSessions(ctx, model.StatsConfig{Since: &since})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].LocalID != "local-2" {
		t.Fatalf("unexpected since filter result: %+v", sessions)
	}
	if sessions[0].SuspiciousCount != 1 || sessions[0].Difficulty != model.Easy {
		t.Fatalf("unexpected record fields: %+v", sessions[0])
	}
}

func TestSubSecondTimestampsSortInTimeOrder(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC)
	offsets := []time.Duration{123 * time.Millisecond, 0, 100 * time.Millisecond, 120 * time.Millisecond}
	for i, off := range offsets {
		p := testPayload(i, 40)
		p.EndedAt = base.Add(off)
		if _, _, err := st.RecordSession(ctx, p, DefaultHistoryLimit); err != nil {
			t.Fatalf("record session: %v", err)
		}
	}

	sessions, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	order := []int{1, 2, 3, 0}
	if len(sessions) != len(order) {
		t.Fatalf("expected %d sessions, got %d", len(order), len(sessions))
	}
	for i, idx := range order {
		if want := fmt.Sprintf("local-%d", idx); sessions[i].LocalID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, sessions[i].LocalID)
		}
		if !sessions[i].EndedAt.Equal(base.Add(offsets[idx])) {
			t.Fatalf("unexpected ended_at at %d: %v", i, sessions[i].EndedAt)
		}
	}

	since := base.Add(100 * time.Millisecond)
	sessions, err = st.ListSessions(ctx, model.StatsConfig{Since: &since})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 3 || sessions[0].LocalID != "local-2" {
		t.Fatalf("unexpected since filter result: %+v", sessions)
	}

	if _, _, err := st.RecordSession(ctx, testPayload(9, 40), 2); err != nil {
		t.Fatalf("record session: %v", err)
	}
	sessions, err = st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].LocalID != "local-0" || sessions[1].LocalID != "local-9" {
		t.Fatalf("expected prune to keep the newest sessions, got %+v", sessions)
	}
}

func TestSuspiciousEventsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, _, err := st.RecordSession(ctx, testPayload(0, 40), DefaultHistoryLimit); err != nil {
		t.Fatalf("record session: %v", err)
	}
	events, err := st.SuspiciousEvents(ctx, "local-0")
	if err != nil {
		t.Fatalf("suspicious events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != model.RapidTyping {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestFindSessionByPrefix(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"abc-1", "abd-2", "x_y"} {
		p := testPayload(i, 40)
		p.LocalID = id
		if _, _, err := st.RecordSession(ctx, p, DefaultHistoryLimit); err != nil {
			t.Fatalf("record session: %v", err)
		}
	}

	rec, err := st.FindSession(ctx, "abc")
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if rec.LocalID != "abc-1" || rec.Duration != 30 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := st.FindSession(ctx, "ab"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ambiguous prefix, got %v", err)
	}
	if _, err := st.FindSession(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := st.FindSession(ctx, "x_"); err != nil {
		t.Fatalf("expected literal underscore match, got %v", err)
	}
	if _, err := st.FindSession(ctx, "_"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("underscore must not act as a wildcard, got %v", err)
	}
}
