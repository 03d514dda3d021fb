// Package stats contains statistics calculations and reporting.
package stats

import (
	"math"
	"time"

	"github.com/verte-zerg/neotype/internal/model"
)

// CharsPerWord is the standard characters-per-word convention.
const CharsPerWord = 5.0

// WPM returns words per minute for typed runes over elapsed time, rounded
// to the nearest integer. Zero elapsed time yields zero.
func WPM(typed int, elapsed time.Duration) int {
	return int(math.Round(rawWPM(typed, elapsed)))
}

func rawWPM(typed int, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return (float64(typed) / CharsPerWord) / (seconds / 60)
}

// CorrectChars counts position-wise matches over the common prefix length.
func CorrectChars(typed, reference []rune) int {
	n := min(len(typed), len(reference))
	correct := 0
	for i := 0; i < n; i++ {
		if typed[i] == reference[i] {
			correct++
		}
	}
	return correct
}

// Accuracy returns the percentage of typed runes that match the reference,
// rounded to one decimal. An empty buffer is 100: nothing typed, nothing
// wrong.
func Accuracy(typed, reference []rune) float64 {
	if len(typed) == 0 {
		return 100
	}
	return round1(float64(CorrectChars(typed, reference)) / float64(len(typed)) * 100)
}

// Progress returns typed length as a percentage of the reference length.
func Progress(typed, reference []rune) float64 {
	if len(reference) == 0 {
		return 0
	}
	return float64(len(typed)) / float64(len(reference)) * 100
}

// Remaining returns the unused part of the time budget in seconds.
func Remaining(budget, elapsed time.Duration) float64 {
	return math.Max(0, (budget - elapsed).Seconds())
}

// Live recomputes display metrics from scratch.
func Live(typed, reference []rune, elapsed, budget time.Duration) model.LiveMetrics {
	return model.LiveMetrics{
		WPM:              WPM(len(typed), elapsed),
		Accuracy:         Accuracy(typed, reference),
		Progress:         Progress(typed, reference),
		RemainingSeconds: Remaining(budget, elapsed),
	}
}

// Final computes the locally scored result of a session.
func Final(typed, reference []rune, elapsed time.Duration) model.FinalResult {
	correct := CorrectChars(typed, reference)
	return model.FinalResult{
		WPM:               float64(WPM(len(typed), elapsed)),
		Accuracy:          Accuracy(typed, reference),
		TypingTimeSeconds: elapsed.Seconds(),
		CorrectChars:      correct,
		IncorrectChars:    len(typed) - correct,
		TotalChars:        len(typed),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
