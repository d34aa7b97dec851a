package reconciliation

import "github.com/fortuna/pennant/internal/league"

// IsBetter reports whether candidate should replace current. The first decisive rule wins:
//  1. a structurally valid record beats one with a bad abbreviation or league
//  2. COMPLETED beats any other status
//  3. both scores present beats a missing score
//  4. more inning entries
//  5. more populated optional fields
//
// A full tie keeps current, which makes re-applying an observation a no-op.
func IsBetter(ref *league.Reference, candidate, current *league.Game) bool {
	if cv, ev := structurallyValid(ref, candidate), structurallyValid(ref, current); cv != ev {
		return cv
	}

	cc, ec := candidate.Status == league.StatusCompleted, current.Status == league.StatusCompleted
	if cc != ec {
		return cc
	}

	if cs, es := candidate.HasScores(), current.HasScores(); cs != es {
		return cs
	}

	if cn, en := candidate.InningEntries(), current.InningEntries(); cn != en {
		return cn > en
	}

	return candidate.PopulatedOptional() > current.PopulatedOptional()
}

// structurallyValid checks team codes against the reference table and the league
// against the one the two teams imply.
func structurallyValid(ref *league.Reference, g *league.Game) bool {
	if !ref.ValidPair(g.HomeTeamID, g.HomeAbbr) || !ref.ValidPair(g.AwayTeamID, g.AwayAbbr) {
		return false
	}
	if !g.League.Valid() {
		return false
	}
	want, ok := ref.GameLeague(g.HomeTeamID, g.AwayTeamID)
	return ok && want == g.League
}
