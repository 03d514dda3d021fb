// Package replay drives the engine headlessly from recorded event scripts.
package replay

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/neotype/internal/engine"
	"github.com/verte-zerg/neotype/internal/model"
)

// Script is a recorded test attempt.
type Script struct {
	Duration   int    `yaml:"duration"`
	Difficulty string `yaml:"difficulty"`
	// Text pins the reference text; empty means ask the gateway.
	Text   string `yaml:"text"`
	Events []Step `yaml:"events"`
}

// Step is one input event, at an offset from the moment the session armed.
type Step struct {
	At          string  `yaml:"at"`
	Key         string  `yaml:"key,omitempty"`
	Type        string  `yaml:"type,omitempty"`
	Every       string  `yaml:"every,omitempty"`
	Paste       *string `yaml:"paste,omitempty"`
	Release     bool    `yaml:"release,omitempty"`
	FocusLost   bool    `yaml:"focus_lost,omitempty"`
	ContextMenu bool    `yaml:"context_menu,omitempty"`
	Tick        bool    `yaml:"tick,omitempty"`
	Stop        bool    `yaml:"stop,omitempty"`
}

// Load reads a script from a YAML file.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	return Parse(data)
}

// Parse decodes and validates a YAML script.
func Parse(data []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("failed to decode script: %w", err)
	}
	if s.Duration <= 0 {
		return Script{}, fmt.Errorf("script duration must be positive")
	}
	if s.Difficulty == "" {
		s.Difficulty = string(model.Medium)
	}
	if _, err := model.ParseDifficulty(s.Difficulty); err != nil {
		return Script{}, err
	}
	return s, nil
}

type timedEvent struct {
	offset time.Duration
	event  engine.Event
}

// expand turns steps into engine events stamped relative to base. A Type
// step expands into one key press per rune, Every apart.
func (s Script) expand(base time.Time) ([]timedEvent, error) {
	var out []timedEvent
	var last time.Duration
	for i, step := range s.Events {
		offset, err := time.ParseDuration(step.At)
		if err != nil {
			return nil, fmt.Errorf("event %d: invalid at %q: %w", i, step.At, err)
		}
		if offset < last {
			return nil, fmt.Errorf("event %d: at %s is before previous event", i, step.At)
		}
		last = offset
		at := base.Add(offset)

		switch {
		case step.Type != "":
			every := 200 * time.Millisecond
			if step.Every != "" {
				if every, err = time.ParseDuration(step.Every); err != nil {
					return nil, fmt.Errorf("event %d: invalid every %q: %w", i, step.Every, err)
				}
			}
			for j, r := range []rune(step.Type) {
				d := offset + time.Duration(j)*every
				out = append(out, timedEvent{offset: d, event: engine.KeyPress{Key: model.RuneKey(r), At: base.Add(d)}})
				last = d
			}
		case step.Key != "":
			ev, err := keyEvent(step.Key, at)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			out = append(out, timedEvent{offset: offset, event: ev})
		case step.Paste != nil:
			out = append(out, timedEvent{offset: offset, event: engine.Paste{Text: *step.Paste, At: at}})
		case step.Release:
			out = append(out, timedEvent{offset: offset, event: engine.KeyRelease{At: at}})
		case step.FocusLost:
			out = append(out, timedEvent{offset: offset, event: engine.FocusLost{At: at}})
		case step.ContextMenu:
			out = append(out, timedEvent{offset: offset, event: engine.ContextMenu{}})
		case step.Tick:
			out = append(out, timedEvent{offset: offset, event: engine.Tick{At: at}})
		case step.Stop:
			out = append(out, timedEvent{offset: offset, event: engine.Stop{At: at}})
		default:
			return nil, fmt.Errorf("event %d: no action", i)
		}
	}
	return out, nil
}

func keyEvent(name string, at time.Time) (engine.Event, error) {
	switch strings.ToLower(name) {
	case "backspace":
		return engine.KeyPress{Key: model.Backspace, At: at}, nil
	case "space":
		return engine.KeyPress{Key: model.RuneKey(' '), At: at}, nil
	case "esc", "escape":
		return engine.Stop{At: at}, nil
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return engine.KeyPress{Key: model.RuneKey(r), At: at}, nil
	}
	if name == "" {
		return nil, fmt.Errorf("empty key")
	}
	return engine.KeyPress{Key: model.ControlKey(name), At: at}, nil
}
