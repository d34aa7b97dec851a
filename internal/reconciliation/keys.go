package reconciliation

import (
	"database/sql"
	"sort"
	"strconv"
	"strings"

	"github.com/fortuna/pennant/internal/league"
)

// Key is the orientation-sensitive identity of an observation: date, home, away.
type Key struct {
	Date string
	Home int
	Away int
}

// SymKey tolerates swapped home/away and minor formatting drift by keying on
// order-free facts of the game.
type SymKey struct {
	Date         string
	Low          int
	High         int
	Scores       string
	Status       league.Status
	FinalInnings int
	GameTime     string
}

// PairKey is the canonical identity: one record per date and unordered team pair.
type PairKey struct {
	Low  int
	High int
}

// StrictKey is the orientation-sensitive key of g.
func StrictKey(g *league.Game) Key {
	return Key{Date: g.DateKey(), Home: g.HomeTeamID, Away: g.AwayTeamID}
}

// SymmetricKey is the orientation-free key of g. Two observations of one game that
// disagree only on which side is home share it.
func SymmetricKey(g *league.Game) SymKey {
	p := PairOf(g)
	return SymKey{
		Date:         g.DateKey(),
		Low:          p.Low,
		High:         p.High,
		Scores:       scoreTokens(g),
		Status:       g.Status,
		FinalInnings: g.FinalInningCount(),
		GameTime:     g.GameTime.String,
	}
}

// PairOf is the unordered team pair of g.
func PairOf(g *league.Game) PairKey {
	if g.HomeTeamID < g.AwayTeamID {
		return PairKey{Low: g.HomeTeamID, High: g.AwayTeamID}
	}
	return PairKey{Low: g.AwayTeamID, High: g.HomeTeamID}
}

// scoreTokens renders the present scores in ascending order, e.g. "2-5", "3" or "".
func scoreTokens(g *league.Game) string {
	var scores []int
	for _, s := range []sql.NullInt32{g.HomeScore, g.AwayScore} {
		if s.Valid {
			scores = append(scores, int(s.Int32))
		}
	}
	sort.Ints(scores)

	tokens := make([]string, len(scores))
	for i, s := range scores {
		tokens[i] = strconv.Itoa(s)
	}
	return strings.Join(tokens, "-")
}
