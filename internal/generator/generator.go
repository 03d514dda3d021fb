// Package generator builds offline reference texts.
package generator

import (
	"math/rand"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/verte-zerg/neotype/internal/model"
)

// MinWords is the floor on generated text length.
const MinWords = 20

// Style controls decoration applied to picked words.
type Style struct {
	CapsPct  float64
	PunctPct float64
	PunctSet []rune
}

// StyleFor returns the decoration used for a difficulty. Only hard texts
// are decorated.
func StyleFor(d model.Difficulty) Style {
	if d == model.Hard {
		return Style{CapsPct: 0.15, PunctPct: 0.1, PunctSet: []rune(".,;?!")}
	}
	return Style{}
}

// TargetWords is the number of words generated for a test duration in
// seconds: two per second, at least MinWords.
func TargetWords(duration int) int {
	return max(MinWords, duration*2)
}

// Generator produces randomized typing text.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate selects words uniformly and applies caps/punctuation rules.
func (g *Generator) Generate(words []string, count int, style Style) []string {
	result := make([]string, 0, count)
	if len(words) == 0 {
		return result
	}
	for i := 0; i < count; i++ {
		word := words[g.rnd.Intn(len(words))]
		word = applyCaps(g.rnd, word, style.CapsPct)
		word = applyPunct(g.rnd, word, style.PunctPct, style.PunctSet)
		result = append(result, word)
	}
	return result
}

// Sample builds a reference text sized for duration.
func (g *Generator) Sample(words []string, duration int, d model.Difficulty) model.TextSample {
	picked := g.Generate(words, TargetWords(duration), StyleFor(d))
	text := strings.Join(picked, " ")
	return model.TextSample{
		Text:           text,
		WordCount:      len(picked),
		CharacterCount: utf8.RuneCountInString(text),
	}
}

func applyCaps(rnd *rand.Rand, word string, capsPct float64) string {
	if capsPct <= 0 {
		return word
	}
	if rnd.Float64() > capsPct {
		return word
	}
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func applyPunct(rnd *rand.Rand, word string, punctPct float64, punctSet []rune) string {
	if punctPct <= 0 || len(punctSet) == 0 {
		return word
	}
	if rnd.Float64() > punctPct {
		return word
	}
	punct := punctSet[rnd.Intn(len(punctSet))]
	return word + string(punct)
}
