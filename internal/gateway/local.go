package gateway

import (
	"context"
	"sync"

	"github.com/verte-zerg/neotype/internal/generator"
	"github.com/verte-zerg/neotype/internal/model"
	"github.com/verte-zerg/neotype/internal/telemetry"
	"github.com/verte-zerg/neotype/internal/wordlist"
)

// Local is the offline gateway. Texts come from the word-list generator;
// every backend call reports ErrUnavailable so sessions run degraded.
type Local struct {
	mu          sync.Mutex
	gen         *generator.Generator
	wordListDir string
}

// NewLocal returns an offline gateway reading optional word lists from
// wordListDir.
func NewLocal(gen *generator.Generator, wordListDir string) *Local {
	if gen == nil {
		gen = generator.New()
	}
	return &Local{gen: gen, wordListDir: wordListDir}
}

// FetchText generates a text for duration and difficulty.
func (l *Local) FetchText(ctx context.Context, duration int, difficulty model.Difficulty) (model.TextSample, error) {
	if err := ctx.Err(); err != nil {
		return model.TextSample{}, &TextFetchError{Reason: "cancelled", Err: err}
	}
	words, err := wordlist.ForDifficulty(l.wordListDir, difficulty)
	if err != nil {
		return model.TextSample{}, &TextFetchError{Reason: "word list", Err: err}
	}
	l.mu.Lock()
	sample := l.gen.Sample(words, duration, difficulty)
	l.mu.Unlock()
	if err := ValidateSample(sample); err != nil {
		return model.TextSample{}, err
	}
	return sample, nil
}

// Arm always fails offline.
func (l *Local) Arm(context.Context, int, string) (string, error) {
	return "", ErrUnavailable
}

// ReportProgress always fails offline.
func (l *Local) ReportProgress(context.Context, string, Progress) error {
	return ErrUnavailable
}

// Finalize always fails offline.
func (l *Local) Finalize(context.Context, FinalizeRequest) (FinalizeResponse, error) {
	return FinalizeResponse{}, ErrUnavailable
}

// UploadBatch always fails offline.
func (l *Local) UploadBatch(context.Context, []telemetry.Entry) error {
	return ErrUnavailable
}

// Leaderboard always fails offline.
func (l *Local) Leaderboard(context.Context, int) ([]model.LeaderboardRow, error) {
	return nil, ErrUnavailable
}
