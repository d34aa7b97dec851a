package npb

import (
	"regexp"
	"strings"

	"github.com/fortuna/pennant/internal/league"
)

// Classifier turns the textual signals of one game block into a lifecycle status.
// It keeps no state between calls.
type Classifier struct {
	postponed  []string
	completed  []string
	inProgress []string
	patterns   []*regexp.Regexp
}

// NewClassifier builds a classifier from the keyword lists of rules.
func NewClassifier(rules league.Rules) *Classifier {
	return &Classifier{
		postponed:  foldAll(rules.PostponedKeywords),
		completed:  foldAll(rules.CompletedKeywords),
		inProgress: foldAll(rules.InProgressKeywords),
		patterns:   rules.InProgressPatterns,
	}
}

// Classify evaluates, in order: postponement keywords, completion keywords, in-progress
// inning patterns. Anything else stays SCHEDULED.
func (c *Classifier) Classify(signals ...string) league.Status {
	text := foldSignal(strings.Join(signals, "\n"))
	if text == "" {
		return league.StatusScheduled
	}

	switch {
	case containsAny(text, c.postponed):
		return league.StatusPostponed
	case containsAny(text, c.completed):
		return league.StatusCompleted
	case containsAny(text, c.inProgress):
		return league.StatusInProgress
	}
	for _, p := range c.patterns {
		if p.MatchString(text) {
			return league.StatusInProgress
		}
	}
	return league.StatusScheduled
}

func foldSignal(s string) string {
	return strings.ToLower(NormalizeDigits(s))
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if f := foldSignal(w); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
