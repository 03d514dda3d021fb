package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/neotype/internal/model"
)

func interval(ms int64) *int64 { return &ms }

func TestInspectFlagsRapidKeys(t *testing.T) {
	d := New(0)
	ev := model.KeystrokeEvent{Key: "a", TimestampMs: 1010, Position: 3, IntervalMs: interval(10)}

	got, ok := d.Inspect(ev)
	require.True(t, ok)
	assert.Equal(t, model.RapidTyping, got.Kind)
	assert.Equal(t, int64(1010), got.TimestampMs)
	assert.Equal(t, int64(10), got.Metadata["interval_ms"])
	assert.Equal(t, "a", got.Metadata["key"])
}

func TestInspectIgnoresHumanPace(t *testing.T) {
	d := New(0)
	_, ok := d.Inspect(model.KeystrokeEvent{Key: "a", IntervalMs: interval(50)})
	assert.False(t, ok, "50ms is at the threshold, not below it")
	_, ok = d.Inspect(model.KeystrokeEvent{Key: "a", IntervalMs: interval(180)})
	assert.False(t, ok)
}

func TestInspectSkipsFirstAndBackspace(t *testing.T) {
	d := New(0)
	_, ok := d.Inspect(model.KeystrokeEvent{Key: "a"})
	assert.False(t, ok, "first keystroke has no interval")
	_, ok = d.Inspect(model.KeystrokeEvent{Key: "Backspace", Backspace: true, IntervalMs: interval(5)})
	assert.False(t, ok, "backspace is never rapid typing")
}

func TestCustomThreshold(t *testing.T) {
	d := New(100 * time.Millisecond)
	_, ok := d.Inspect(model.KeystrokeEvent{Key: "a", IntervalMs: interval(80)})
	assert.True(t, ok)
}

func TestPasteAndFocus(t *testing.T) {
	d := New(0)
	paste := d.Paste(42, 17)
	assert.Equal(t, model.PasteAttempt, paste.Kind)
	assert.Equal(t, 17, paste.Metadata["length"])

	focus := d.FocusLost(43, 2)
	assert.Equal(t, model.FocusLost, focus.Kind)
	assert.Equal(t, 2, focus.Metadata["count"])
}
