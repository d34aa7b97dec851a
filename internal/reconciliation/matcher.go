package reconciliation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/width"

	"github.com/fortuna/pennant/internal/league"
)

// Resolver maps free-text team labels from score pages onto reference teams.
type Resolver struct {
	byName  map[string]league.TeamIdentity
	byLabel map[string]league.TeamIdentity
	partial []candidate
}

type candidate struct {
	text string
	team league.TeamIdentity
}

// NewResolver indexes full names, short labels and abbreviations of every team.
// A label claimed by two different teams is a reference error.
func NewResolver(ref *league.Reference) (*Resolver, error) {
	r := &Resolver{
		byName:  make(map[string]league.TeamIdentity),
		byLabel: make(map[string]league.TeamIdentity),
	}

	for _, team := range ref.Teams() {
		for _, name := range []string{team.Name, team.EnglishName} {
			if key := foldLabel(name); key != "" {
				r.byName[key] = team
				r.partial = append(r.partial, candidate{text: key, team: team})
			}
		}

		for _, label := range append([]string{team.Abbreviation}, team.Labels...) {
			key := foldLabel(label)
			if key == "" {
				continue
			}
			if other, ok := r.byLabel[key]; ok && other.ID != team.ID {
				return nil, errors.Wrapf(league.ErrInvalidReference, "label %q claimed by %s and %s", label, other.Abbreviation, team.Abbreviation)
			}
			r.byLabel[key] = team
			if substringEligible(key) {
				r.partial = append(r.partial, candidate{text: key, team: team})
			}
		}
	}

	return r, nil
}

// Resolve tries, in order: exact full name, exact short label, then substring
// containment in either direction. Unknown labels return false.
func (r *Resolver) Resolve(label string) (league.TeamIdentity, bool) {
	key := foldLabel(label)
	if key == "" {
		return league.TeamIdentity{}, false
	}

	if team, ok := r.byName[key]; ok {
		return team, true
	}
	if team, ok := r.byLabel[key]; ok {
		return team, true
	}

	if !substringEligible(key) {
		return league.TeamIdentity{}, false
	}
	for _, c := range r.partial {
		if strings.Contains(key, c.text) || strings.Contains(c.text, key) {
			return c.team, true
		}
	}
	return league.TeamIdentity{}, false
}

// foldLabel folds width, case and whitespace so "ＤｅＮＡ", "DeNA" and "dena" compare equal.
func foldLabel(s string) string {
	folded := width.Fold.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, folded)
}

// substringEligible keeps short glyph codes ("G", "DB") out of containment matching.
func substringEligible(key string) bool {
	n := utf8.RuneCountInString(key)
	for _, r := range key {
		if r >= utf8.RuneSelf {
			return n >= 2
		}
	}
	return n >= 3
}
