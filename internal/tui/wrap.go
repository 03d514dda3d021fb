package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// cell is one rendered rune of the reference text.
type cell struct {
	s      string
	width  int
	space  bool
	cursor bool
}

// styleText colors the reference against what was typed. The cursor sits
// on the first untyped rune; a finished buffer has no cursor.
func styleText(reference, typed []rune) []cell {
	cursor := len(typed)
	if cursor >= len(reference) {
		cursor = -1
	}
	current := wordAt(findWords(reference), cursor)

	out := make([]cell, 0, len(reference))
	for i, want := range reference {
		shown := want
		style := pendingStyle
		switch {
		case i < len(typed) && want == ' ' && typed[i] != ' ':
			shown = '•'
			style = incorrectStyle
		case i < len(typed) && typed[i] == want:
			style = correctStyle
		case i < len(typed):
			style = incorrectStyle
		case want != ' ' && current != nil && i >= current.start && i < current.end:
			style = currentWordStyle
		}
		if i == cursor {
			style = cursorStyle
		}
		out = append(out, cell{
			s:      style.Render(string(shown)),
			width:  runewidth.RuneWidth(shown),
			space:  want == ' ',
			cursor: i == cursor,
		})
	}
	return out
}

type wordRange struct {
	start int
	end   int
}

func findWords(text []rune) []wordRange {
	var words []wordRange
	start := -1
	for i, r := range text {
		if r == ' ' {
			if start != -1 {
				words = append(words, wordRange{start: start, end: i})
				start = -1
			}
			continue
		}
		if start == -1 {
			start = i
		}
	}
	if start != -1 {
		words = append(words, wordRange{start: start, end: len(text)})
	}
	return words
}

// wordAt returns the word holding index, or the next word when index
// falls on a space.
func wordAt(words []wordRange, index int) *wordRange {
	if len(words) == 0 || index < 0 {
		return nil
	}
	for i := range words {
		if index < words[i].end {
			return &words[i]
		}
	}
	return &words[len(words)-1]
}

// wrapCells breaks cells into lines no wider than width, preferring to
// break at spaces. The breaking space is dropped.
func wrapCells(cells []cell, width int) [][]cell {
	if width <= 0 {
		return [][]cell{cells}
	}
	var lines [][]cell
	line := make([]cell, 0, width)
	lineWidth := 0
	lastSpace := -1

	for i := 0; i < len(cells); {
		c := cells[i]
		if lineWidth+c.width > width && len(line) > 0 {
			if lastSpace >= 0 {
				lines = append(lines, line[:lastSpace])
				line = append([]cell{}, line[lastSpace+1:]...)
			} else {
				lines = append(lines, line)
				line = []cell{}
			}
			lineWidth, lastSpace = measure(line)
			continue
		}
		line = append(line, c)
		lineWidth += c.width
		if c.space {
			lastSpace = len(line) - 1
		}
		i++
	}
	return append(lines, line)
}

func measure(line []cell) (width, lastSpace int) {
	lastSpace = -1
	for i, c := range line {
		width += c.width
		if c.space {
			lastSpace = i
		}
	}
	return width, lastSpace
}

func cursorLine(lines [][]cell) int {
	for i, line := range lines {
		for _, c := range line {
			if c.cursor {
				return i
			}
		}
	}
	return len(lines) - 1
}

// renderWindow renders at most n lines, keeping the cursor on the second
// line once typing has moved past the first.
func renderWindow(lines [][]cell, n int) string {
	first := 0
	if n > 0 && len(lines) > n {
		first = max(0, cursorLine(lines)-1)
		first = min(first, len(lines)-n)
		lines = lines[first : first+n]
	}
	rendered := make([]string, len(lines))
	for i, line := range lines {
		var b strings.Builder
		for _, c := range line {
			b.WriteString(c.s)
		}
		rendered[i] = b.String()
	}
	return strings.Join(rendered, "\n")
}
