package tui

import (
	"strings"
	"testing"
)

func TestStyleTextCursor(t *testing.T) {
	cells := styleText([]rune("ab"), []rune("a"))
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if cells[0].s != correctStyle.Render("a") {
		t.Fatalf("expected correct style for first rune")
	}
	if cells[1].s != cursorStyle.Render("b") || !cells[1].cursor {
		t.Fatalf("expected cursor on second rune")
	}
}

func TestStyleTextNoCursorWhenComplete(t *testing.T) {
	cells := styleText([]rune("a"), []rune("a"))
	if cells[0].cursor {
		t.Fatalf("finished text must not show a cursor")
	}
	if cells[0].s != correctStyle.Render("a") {
		t.Fatalf("expected correct style for completed rune")
	}
}

func TestStyleTextKeepsReferenceOnMistype(t *testing.T) {
	cells := styleText([]rune("ab"), []rune("ax"))
	if cells[1].s != incorrectStyle.Render("b") {
		t.Fatalf("expected incorrect style showing the reference rune")
	}
}

func TestStyleTextWordHighlighting(t *testing.T) {
	cells := styleText([]rune("one two"), []rune("o"))
	if cells[2].s != currentWordStyle.Render("e") {
		t.Fatalf("expected current word style for untyped in current word")
	}
	if cells[4].s != pendingStyle.Render("t") {
		t.Fatalf("expected pending style for next word")
	}
}

func TestStyleTextWrongSpaceDot(t *testing.T) {
	cells := styleText([]rune("a b"), []rune("ax"))
	if cells[1].s != incorrectStyle.Render("•") {
		t.Fatalf("expected red dot for wrong space")
	}
}

func plain(text string) []cell {
	cells := make([]cell, 0, len(text))
	for _, r := range text {
		cells = append(cells, cell{s: string(r), width: 1, space: r == ' '})
	}
	return cells
}

func TestWrapCellsBreaksAtSpaces(t *testing.T) {
	lines := wrapCells(plain("the cat sat on mat"), 8)
	got := renderWindow(lines, 0)
	if got != "the cat\nsat on\nmat" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestWrapCellsHardBreaksLongWords(t *testing.T) {
	lines := wrapCells(plain("abcdefghij"), 4)
	if got := renderWindow(lines, 0); got != "abcd\nefgh\nij" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestRenderWindowFollowsCursor(t *testing.T) {
	cells := plain("aa bb cc dd ee")
	cells[9].cursor = true // first rune of "dd"
	lines := wrapCells(cells, 3)
	got := renderWindow(lines, 2)
	if !strings.HasPrefix(got, "cc") || !strings.Contains(got, "dd") {
		t.Fatalf("expected window around cursor, got %q", got)
	}
}
