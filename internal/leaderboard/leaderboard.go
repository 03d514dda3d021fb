// Package leaderboard serves ranked results through a time-bounded cache.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/verte-zerg/neotype/internal/cache"
	"github.com/verte-zerg/neotype/internal/clock"
	"github.com/verte-zerg/neotype/internal/gateway"
	"github.com/verte-zerg/neotype/internal/model"
)

// Defaults for the cache lifetimes.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultRefreshInterval = 2 * time.Minute
)

// Score weights of the composite ranking.
const (
	WPMWeight      = 0.7
	AccuracyWeight = 0.3
)

// Score is the composite rank key of a row.
func Score(wpm, accuracy float64) float64 {
	return math.Round((wpm*WPMWeight+accuracy*AccuracyWeight)*100) / 100
}

// Rank scores rows and sorts them best first. Ties keep the higher WPM
// ahead.
func Rank(rows []model.LeaderboardRow) []model.LeaderboardRow {
	out := make([]model.LeaderboardRow, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].Score = Score(out[i].WPM, out[i].Accuracy)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].WPM > out[j].WPM
	})
	return out
}

// Key is the cache key for a duration.
func Key(duration int) string {
	return fmt.Sprintf("leaderboard_%d", duration)
}

// Service memoizes leaderboard queries.
type Service struct {
	source gateway.LeaderboardSource
	cache  *cache.Cache[string, []model.LeaderboardRow]
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Service caching results for ttl.
func New(source gateway.LeaderboardSource, ttl time.Duration, clk clock.Clock, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		cache:  cache.New[string, []model.LeaderboardRow](ttl, clk),
		clock:  clk,
		logger: logger,
	}
}

// Top returns the ranked leaderboard for duration, from cache when fresh.
// Callers own the returned slice.
func (s *Service) Top(ctx context.Context, duration int) ([]model.LeaderboardRow, error) {
	key := Key(duration)
	if rows, ok := s.cache.Get(key); ok {
		return slices.Clone(rows), nil
	}
	rows, err := s.source.Leaderboard(ctx, duration)
	if err != nil {
		return nil, fmt.Errorf("leaderboard %ds: %w", duration, err)
	}
	ranked := Rank(rows)
	s.cache.Set(key, ranked)
	return slices.Clone(ranked), nil
}

// Refresh drops every cached result.
func (s *Service) Refresh() {
	s.cache.Clear()
	s.logger.Debug("leaderboard cache cleared")
}

// RefreshEvery clears the cache every interval until ctx is done.
func (s *Service) RefreshEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}
