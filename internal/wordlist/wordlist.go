// Package wordlist loads word lists from files.
package wordlist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/neotype/internal/model"
)

var builtin = map[model.Difficulty][]string{
	model.Easy: {
		"the", "and", "for", "you", "are", "with", "this", "that", "have", "from",
		"they", "know", "want", "been", "good", "much", "some", "time", "very", "when",
	},
	model.Medium: {
		"people", "about", "would", "could", "there", "their", "think", "where", "being", "right",
		"before", "after", "should", "through", "during", "follow", "around", "between", "without", "something",
	},
	model.Hard: {
		"government", "development", "management", "information", "environment",
		"community", "university", "technology", "opportunity", "experience",
		"achievement", "responsibility", "understanding", "communication", "organization",
		"relationship", "professional", "international", "contemporary", "perspective",
	},
}

// Builtin returns the embedded vocabulary for a difficulty. Unknown
// difficulties fall back to medium.
func Builtin(d model.Difficulty) []string {
	words, ok := builtin[d]
	if !ok {
		words = builtin[model.Medium]
	}
	out := make([]string, len(words))
	copy(out, words)
	return out
}

// ForDifficulty loads <dir>/<difficulty>.txt when dir is set and the file
// exists, keeping only typeable words. Otherwise the builtin list is used.
func ForDifficulty(dir string, d model.Difficulty) ([]string, error) {
	if dir == "" {
		return Builtin(d), nil
	}
	path := filepath.Join(dir, string(d)+".txt")
	words, err := LoadWords(path)
	if errors.Is(err, os.ErrNotExist) {
		return Builtin(d), nil
	}
	if err != nil {
		return nil, err
	}
	words = Filter(words, Typeable)
	if len(words) == 0 {
		return nil, fmt.Errorf("word list %s has no typeable words", path)
	}
	return words, nil
}

// LoadWords reads one word per line from the provided file path.
func LoadWords(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only word list.
			_ = cerr
		}
	}()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("word list is empty")
	}
	return words, nil
}
