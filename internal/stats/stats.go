package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/neotype/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 || len(values) == 0 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		den := float64(i + 1)
		if i >= window {
			sum -= values[i-window]
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values. When
// width is positive and smaller than len(values), only the latest width
// values are drawn.
func Sparkline(values []float64, width int) string {
	if width > 0 && len(values) > width {
		values = values[len(values)-width:]
	}
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints the rolling aggregate and per-duration bests.
func RenderSummary(w io.Writer, sessions []model.SessionRecord, agg model.Aggregate) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	confirmed, flagged := 0, 0
	for _, s := range sessions {
		if s.ServerConfirmed {
			confirmed++
		}
		if s.SuspiciousCount > 0 {
			flagged++
		}
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d (%d confirmed, %d flagged)", len(sessions), confirmed, flagged),
		fmt.Sprintf("Tests: %d total, %d counted", agg.TotalTests, agg.CompletedTests),
		fmt.Sprintf("Avg WPM: %.2f", agg.AvgWPM),
		fmt.Sprintf("Avg Accuracy: %.2f%%", agg.AvgAccuracy),
	}
	durations := make([]int, 0, len(agg.BestWPM))
	for d := range agg.BestWPM {
		durations = append(durations, d)
	}
	sort.Ints(durations)
	for _, d := range durations {
		lines = append(lines, fmt.Sprintf("Best WPM (%ds): %.0f", d, agg.BestWPM[d]))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves prints smoothed WPM and accuracy sparklines.
func RenderCurves(w io.Writer, sessions []model.SessionRecord, window, width int) error {
	if len(sessions) == 0 {
		return nil
	}
	wpms := make([]float64, len(sessions))
	accs := make([]float64, len(sessions))
	for i, s := range sessions {
		wpms[i] = s.WPM
		accs[i] = s.Accuracy
	}
	wpms = MovingAverage(wpms, window)
	accs = MovingAverage(accs, window)
	if _, err := fmt.Fprintln(w, "Learning Curves"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "WPM      %s\n", Sparkline(wpms, width)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Accuracy %s\n\n", Sparkline(accs, width)); err != nil {
		return err
	}
	return nil
}

// RenderHistory prints the most recent sessions as a table.
func RenderHistory(w io.Writer, sessions []model.SessionRecord, limit int) error {
	if len(sessions) == 0 {
		return nil
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[len(sessions)-limit:]
	}
	headers := []string{"ID", "Ended", "Time", "Level", "WPM", "Accuracy", "Flags", "Status"}
	rows := make([][]string, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		rows = append(rows, []string{
			shortID(s.LocalID),
			s.EndedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%ds", s.Duration),
			string(s.Difficulty),
			fmt.Sprintf("%.0f", s.WPM),
			fmt.Sprintf("%.1f%%", s.Accuracy),
			fmt.Sprintf("%d", s.SuspiciousCount),
			sessionStatus(s),
		})
	}
	for _, line := range FormatTable(headers, rows, map[int]bool{2: true, 4: true, 5: true, 6: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sessionStatus(s model.SessionRecord) string {
	switch {
	case s.Aborted:
		return "stopped"
	case s.ServerConfirmed:
		return "confirmed"
	default:
		return "local"
	}
}
