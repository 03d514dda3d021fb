// Package gateway is the boundary to the scoring backend. Every call may
// fail; callers degrade instead of surfacing errors to the typist.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/verte-zerg/neotype/internal/model"
	"github.com/verte-zerg/neotype/internal/telemetry"
)

// ErrUnavailable reports that the backend could not serve a call.
var ErrUnavailable = errors.New("gateway unavailable")

// TextFetchError reports that no usable reference text was obtained.
type TextFetchError struct {
	Reason string
	Err    error
}

func (e *TextFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("text fetch failed: %s: %v", e.Reason, e.Err)
	}
	return "text fetch failed: " + e.Reason
}

func (e *TextFetchError) Unwrap() error {
	return e.Err
}

// Progress is a mid-test snapshot sent for server-side plausibility checks.
type Progress struct {
	TypedLength int     `json:"typed_length"`
	ElapsedMs   int64   `json:"elapsed_ms"`
	WPM         int     `json:"wpm"`
	Accuracy    float64 `json:"accuracy"`
	Keystrokes  int     `json:"keystrokes"`
}

// FinalizeRequest carries everything the backend scores a session from.
type FinalizeRequest struct {
	Token          string                  `json:"session_id"`
	TypedText      string                  `json:"typed_text"`
	ElapsedSeconds float64                 `json:"actual_time"`
	FocusLostCount int                     `json:"focus_lost_count"`
	Suspicious     []model.SuspiciousEvent `json:"suspicious_events"`
	Keystrokes     []model.KeystrokeEvent  `json:"keystrokes"`
}

// FinalizeResponse is the authoritative result.
type FinalizeResponse struct {
	Result      model.FinalResult
	IsNewRecord bool
}

// Gateway is the per-session backend contract.
type Gateway interface {
	FetchText(ctx context.Context, duration int, difficulty model.Difficulty) (model.TextSample, error)
	Arm(ctx context.Context, duration int, text string) (string, error)
	ReportProgress(ctx context.Context, token string, p Progress) error
	Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResponse, error)
}

// LeaderboardSource serves ranked results for a duration.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, duration int) ([]model.LeaderboardRow, error)
}

var (
	_ Gateway            = (*HTTP)(nil)
	_ Gateway            = (*Local)(nil)
	_ LeaderboardSource  = (*HTTP)(nil)
	_ LeaderboardSource  = (*Local)(nil)
	_ telemetry.Uploader = (*HTTP)(nil)
	_ telemetry.Uploader = (*Local)(nil)
)

// ValidateSample rejects empty texts and non-positive counts.
func ValidateSample(s model.TextSample) error {
	switch {
	case strings.TrimSpace(s.Text) == "":
		return &TextFetchError{Reason: "empty text"}
	case s.WordCount <= 0:
		return &TextFetchError{Reason: fmt.Sprintf("word count %d", s.WordCount)}
	case s.CharacterCount <= 0:
		return &TextFetchError{Reason: fmt.Sprintf("character count %d", s.CharacterCount)}
	}
	return nil
}
