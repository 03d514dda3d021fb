package replay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/verte-zerg/neotype/internal/clock"
	"github.com/verte-zerg/neotype/internal/engine"
	"github.com/verte-zerg/neotype/internal/gateway"
	"github.com/verte-zerg/neotype/internal/model"
)

// Options configure the engine used for a replay.
type Options struct {
	RapidThreshold time.Duration
	ProgressEvery  int
	Logger         *slog.Logger
}

// Result is the outcome of a replay.
type Result struct {
	State   model.SessionState
	Payload model.Payload
	Signals []engine.SignalKind
}

type pinnedText struct {
	gateway.Gateway
	text string
}

func (p pinnedText) FetchText(context.Context, int, model.Difficulty) (model.TextSample, error) {
	return model.TextSample{
		Text:           p.text,
		WordCount:      len(strings.Fields(p.text)),
		CharacterCount: utf8.RuneCountInString(p.text),
	}, nil
}

// Run replays script against gw on a fake clock. Gateway calls settle
// after every event, so a replay is deterministic for a given gateway. A
// session still active after the last event runs to its deadline.
func Run(ctx context.Context, script Script, gw gateway.Gateway, opts Options) (Result, error) {
	if script.Text != "" {
		gw = pinnedText{Gateway: gw, text: script.Text}
	}
	base := time.Unix(0, 0).UTC()
	clk := clock.Fake(base)
	queue := engine.NewWorkQueue(ctx)
	m := engine.New(engine.Options{
		Gateway:        gw,
		Dispatcher:     queue,
		Clock:          clk,
		Logger:         opts.Logger,
		RapidThreshold: opts.RapidThreshold,
		ProgressEvery:  opts.ProgressEvery,
	})

	var res Result
	var failure error
	m.Subscribe(func(sig engine.Signal) {
		res.Signals = append(res.Signals, sig.Kind)
		switch sig.Kind {
		case engine.SignalTextFailed:
			failure = sig.Err
		case engine.SignalCompleted, engine.SignalAborted:
			res.Payload = sig.Payload
		}
	})

	difficulty, err := model.ParseDifficulty(script.Difficulty)
	if err != nil {
		return Result{}, err
	}
	m.Handle(engine.Start{Duration: script.Duration, Difficulty: difficulty})
	queue.Drain(m)
	if failure != nil {
		return Result{}, fmt.Errorf("replay: %w", failure)
	}

	events, err := script.expand(base)
	if err != nil {
		return Result{}, err
	}
	for _, te := range events {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if now := clk.Now(); base.Add(te.offset).After(now) {
			clk.Advance(base.Add(te.offset).Sub(now))
		}
		m.Handle(te.event)
		queue.Drain(m)
	}

	if m.State() == model.StateActive {
		deadline := deadline(base, m, script.Duration)
		if deadline.After(clk.Now()) {
			clk.Advance(deadline.Sub(clk.Now()))
		}
		m.Handle(engine.Tick{At: clk.Now()})
		queue.Drain(m)
	}
	res.State = m.State()
	return res, nil
}

// deadline is when an active session's time budget runs out, counted
// from its first keystroke.
func deadline(base time.Time, m *engine.Machine, duration int) time.Time {
	start := base
	if keys := m.Keystrokes(); len(keys) > 0 {
		start = start.Add(time.Duration(keys[0].TimestampMs) * time.Millisecond)
	}
	return start.Add(time.Duration(duration) * time.Second)
}
