package wordlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/verte-zerg/neotype/internal/model"
)

func TestBuiltinPerDifficulty(t *testing.T) {
	for _, d := range []model.Difficulty{model.Easy, model.Medium, model.Hard} {
		words := Builtin(d)
		if len(words) != 20 {
			t.Fatalf("%s: expected 20 words, got %d", d, len(words))
		}
	}
	if Builtin("expert")[0] != "people" {
		t.Fatalf("unknown difficulty should fall back to medium")
	}
}

func TestBuiltinReturnsCopy(t *testing.T) {
	words := Builtin(model.Easy)
	words[0] = "changed"
	if Builtin(model.Easy)[0] != "the" {
		t.Fatalf("builtin list was mutated")
	}
}

func TestForDifficultyReadsDir(t *testing.T) {
	dir := t.TempDir()
	content := "alpha\n\nBeta\ngamma\n"
	if err := os.WriteFile(filepath.Join(dir, "easy.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write word list: %v", err)
	}
	words, err := ForDifficulty(dir, model.Easy)
	if err != nil {
		t.Fatalf("for difficulty: %v", err)
	}
	if len(words) != 2 || words[0] != "alpha" || words[1] != "gamma" {
		t.Fatalf("unexpected words: %v", words)
	}

	words, err = ForDifficulty(dir, model.Hard)
	if err != nil {
		t.Fatalf("missing file should fall back: %v", err)
	}
	if words[0] != "government" {
		t.Fatalf("expected builtin hard list, got %v", words)
	}
}

func TestForDifficultyRejectsUntypeable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "medium.txt"), []byte("Ünïcode\nCAPS\n"), 0o644); err != nil {
		t.Fatalf("write word list: %v", err)
	}
	if _, err := ForDifficulty(dir, model.Medium); err == nil {
		t.Fatalf("expected error for list without typeable words")
	}
}

func TestLoadWordsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadWords(path); err == nil {
		t.Fatalf("expected empty word list error")
	}
}
