package leaderboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/neotype/internal/clock"
	"github.com/verte-zerg/neotype/internal/model"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	rows  []model.LeaderboardRow
	err   error
}

func (s *countingSource) Leaderboard(context.Context, int) ([]model.LeaderboardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.rows, s.err
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRankByCompositeScore(t *testing.T) {
	rows := Rank([]model.LeaderboardRow{
		{Username: "fast-sloppy", WPM: 100, Accuracy: 60},
		{Username: "steady", WPM: 95, Accuracy: 99},
		{Username: "slow", WPM: 40, Accuracy: 100},
	})
	require.Len(t, rows, 3)
	assert.Equal(t, "steady", rows[0].Username)
	assert.Equal(t, 96.2, rows[0].Score)
	assert.Equal(t, "fast-sloppy", rows[1].Username)
	assert.Equal(t, 88.0, rows[1].Score)
	assert.Equal(t, "slow", rows[2].Username)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "leaderboard_60", Key(60))
}

func TestTopIsCached(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	src := &countingSource{rows: []model.LeaderboardRow{{Username: "ada", WPM: 90, Accuracy: 95}}}
	svc := New(src, 5*time.Minute, clk, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rows, err := svc.Top(ctx, 30)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	}
	assert.Equal(t, 1, src.callCount())

	_, err := svc.Top(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())

	clk.Advance(5 * time.Minute)
	_, err = svc.Top(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, src.callCount())
}

func TestTopReturnsCopies(t *testing.T) {
	src := &countingSource{rows: []model.LeaderboardRow{{Username: "ada", WPM: 90, Accuracy: 95}}}
	svc := New(src, time.Minute, clock.Fake(time.Unix(0, 0)), nil)
	ctx := context.Background()

	first, err := svc.Top(ctx, 30)
	require.NoError(t, err)
	first[0].Username = "mallory"

	second, err := svc.Top(ctx, 30)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "ada", second[0].Username)
	second[0].WPM = 0

	third, err := svc.Top(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 90.0, third[0].WPM)
	assert.Equal(t, 1, src.callCount())
}

func TestTopErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("down")}
	svc := New(src, time.Minute, clock.Fake(time.Unix(0, 0)), nil)

	_, err := svc.Top(context.Background(), 30)
	require.Error(t, err)
	_, err = svc.Top(context.Background(), 30)
	require.Error(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestRefreshClearsCache(t *testing.T) {
	src := &countingSource{}
	svc := New(src, time.Hour, clock.Fake(time.Unix(0, 0)), nil)
	ctx := context.Background()

	_, err := svc.Top(ctx, 30)
	require.NoError(t, err)
	svc.Refresh()
	_, err = svc.Top(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestRefreshEveryStopsWithContext(t *testing.T) {
	svc := New(&countingSource{}, time.Hour, clock.Fake(time.Unix(0, 0)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RefreshEvery(ctx, time.Minute)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RefreshEvery did not return after cancel")
	}
}
