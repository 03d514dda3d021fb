// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty selects the vocabulary of the reference text.
type Difficulty string

// Supported difficulties.
const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ParseDifficulty validates a difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Easy, Medium, Hard:
		return d, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q (want easy, medium or hard)", s)
	}
}

// SessionState is the lifecycle state of a single test attempt.
type SessionState int

// Session states in lifecycle order.
const (
	StateIdle SessionState = iota
	StateTextAcquired
	StateArmed
	StateActive
	StateCompleted
	StateAborted
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTextAcquired:
		return "text_acquired"
	case StateArmed:
		return "armed"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// KeyKind distinguishes printable input from named keys.
type KeyKind int

// Key kinds understood by the engine.
const (
	KeyRune KeyKind = iota
	KeyBackspace
	KeyControl
)

// Key is a single pressed key as delivered by the host.
type Key struct {
	Kind KeyKind
	Rune rune
	Name string
}

// RuneKey builds a printable key.
func RuneKey(r rune) Key {
	return Key{Kind: KeyRune, Rune: r}
}

// Backspace is the backspace key.
var Backspace = Key{Kind: KeyBackspace, Name: "Backspace"}

// ControlKey builds a named non-printable key such as Tab.
func ControlKey(name string) Key {
	return Key{Kind: KeyControl, Name: name}
}

func (k Key) String() string {
	if k.Kind == KeyRune {
		return string(k.Rune)
	}
	return k.Name
}

// KeystrokeEvent is one accepted input event. Immutable once logged.
type KeystrokeEvent struct {
	Key         string `json:"key"`
	Backspace   bool   `json:"backspace,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
	Position    int    `json:"position"`
	Correct     bool   `json:"correct"`
	IntervalMs  *int64 `json:"interval_ms"`
	HoldMs      *int64 `json:"hold_ms,omitempty"`
}

// SuspiciousKind names an anti-cheat signal.
type SuspiciousKind string

// Anti-cheat signal kinds.
const (
	PasteAttempt SuspiciousKind = "paste_attempt"
	RapidTyping  SuspiciousKind = "rapid_typing"
	FocusLost    SuspiciousKind = "focus_lost"
)

// SuspiciousEvent is an advisory anti-cheat annotation. Immutable once logged.
type SuspiciousEvent struct {
	Kind        SuspiciousKind `json:"type"`
	TimestampMs int64          `json:"timestamp_ms"`
	Metadata    map[string]any `json:"data"`
}

// LiveMetrics are display values derived from the typed buffer.
type LiveMetrics struct {
	WPM              int
	Accuracy         float64
	Progress         float64
	RemainingSeconds float64
}

// TextSample is a reference text handed out by a text source.
type TextSample struct {
	Text           string `json:"text"`
	WordCount      int    `json:"word_count"`
	CharacterCount int    `json:"character_count"`
}

// FinalResult captures the scored outcome of a session.
type FinalResult struct {
	WPM               float64 `json:"wpm"`
	Accuracy          float64 `json:"accuracy"`
	TypingTimeSeconds float64 `json:"typing_time"`
	CorrectChars      int     `json:"correct_chars"`
	IncorrectChars    int     `json:"incorrect_chars"`
	TotalChars        int     `json:"total_chars"`
}

// Payload is a finalized session, either confirmed by the backend or
// estimated locally.
type Payload struct {
	LocalID         string            `json:"local_id"`
	Token           string            `json:"session_token,omitempty"`
	Duration        int               `json:"duration"`
	Difficulty      Difficulty        `json:"difficulty"`
	ReferenceText   string            `json:"text_content"`
	TypedText       string            `json:"typed_text"`
	ElapsedSeconds  float64           `json:"actual_time"`
	FocusLostCount  int               `json:"focus_lost_count"`
	Keystrokes      []KeystrokeEvent  `json:"keystrokes"`
	Suspicious      []SuspiciousEvent `json:"suspicious_events"`
	Result          FinalResult       `json:"result"`
	ServerConfirmed bool              `json:"server_confirmed"`
	IsNewRecord     bool              `json:"is_new_record"`
	RecordEligible  bool              `json:"record_eligible"`
	Degraded        bool              `json:"degraded"`
	Aborted         bool              `json:"aborted"`
	StartedAt       time.Time         `json:"started_at"`
	EndedAt         time.Time         `json:"ended_at"`
}

// Aggregate is the rolling cross-session summary kept locally.
type Aggregate struct {
	TotalTests     int
	CompletedTests int
	AvgWPM         float64
	AvgAccuracy    float64
	BestWPM        map[int]float64
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Duration    int
	Since       *time.Time
	Last        int
	CurveWindow int
}

// SessionRecord is a stored session summary used for reporting.
type SessionRecord struct {
	SessionID       int64
	LocalID         string
	EndedAt         time.Time
	Duration        int
	Difficulty      Difficulty
	WPM             float64
	Accuracy        float64
	TypingTime      float64
	SuspiciousCount int
	ServerConfirmed bool
	Aborted         bool
}

// LeaderboardRow is one ranked leaderboard entry.
type LeaderboardRow struct {
	Username string  `json:"username"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Score    float64 `json:"score"`
}
