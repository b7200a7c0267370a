// Package loopdetect flags conversations that are degenerating into
// repetition, where the user has started echoing the assistant's own
// coaching language back at it.
package loopdetect

import (
	"strings"

	"github.com/ombralab/mentora/internal/memory"
)

const (
	defaultWindow    = 6
	defaultMinTurns  = 4
	defaultThreshold = 2
)

// Detector checks a recent window of turns for marker-phrase repetition.
// It is a cheap lexical safety valve, not a classifier: a false positive
// just produces a redirect message.
type Detector struct {
	phrases   []string
	window    int
	minTurns  int
	threshold int
}

// Option adjusts detector tuning.
type Option func(*Detector)

// WithWindow sets how many trailing turns are sampled.
func WithWindow(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.window = n
		}
	}
}

// WithMinTurns sets the minimum sampled turns needed before the detector
// will report a loop at all.
func WithMinTurns(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.minTurns = n
		}
	}
}

// WithThreshold sets how many user turns must contain the same marker
// phrase to count as a loop.
func WithThreshold(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.threshold = n
		}
	}
}

// New builds a detector over the given marker phrases. Phrases are matched
// as case-insensitive substrings of user turns.
func New(phrases []string, opts ...Option) *Detector {
	d := &Detector{
		window:    defaultWindow,
		minTurns:  defaultMinTurns,
		threshold: defaultThreshold,
	}
	d.phrases = make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			d.phrases = append(d.phrases, p)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect reports whether the tail of history shows a degenerate loop.
// Fewer than the minimum turns is insufficient signal and never a loop.
func (d *Detector) Detect(history []memory.Turn) bool {
	recent := history
	if len(recent) > d.window {
		recent = recent[len(recent)-d.window:]
	}
	if len(recent) < d.minTurns {
		return false
	}

	userTurns := make([]string, 0, len(recent))
	for _, t := range recent {
		if t.Role == memory.TurnUser {
			userTurns = append(userTurns, strings.ToLower(t.Content))
		}
	}

	for _, phrase := range d.phrases {
		matches := 0
		for _, content := range userTurns {
			if strings.Contains(content, phrase) {
				matches++
				if matches >= d.threshold {
					return true
				}
			}
		}
	}
	return false
}
