package service

import (
	"sort"
	"strconv"

	"github.com/fortuna/pennant/internal/league"
)

// StandingsCalculator recomputes season aggregates from canonical records. It keeps
// no state: every call starts from the full record set.
type StandingsCalculator struct {
	ref *league.Reference
}

// NewStandingsCalculator creates a calculator over the reference teams.
func NewStandingsCalculator(ref *league.Reference) *StandingsCalculator {
	return &StandingsCalculator{ref: ref}
}

type result byte

const (
	resultWin  result = 'W'
	resultLoss result = 'L'
	resultDraw result = 'D'
)

// countable reports whether g contributes to standings.
func countable(g league.Game) bool {
	return g.Status == league.StatusCompleted && g.HasScores()
}

// Aggregate tallies every completed game for every reference team. Teams without a
// completed game still get a zero row. Interleague games count for both sides.
func (c *StandingsCalculator) Aggregate(games []league.Game) map[int]league.Aggregate {
	ordered := make([]league.Game, 0, len(games))
	for _, g := range games {
		if countable(g) {
			ordered = append(ordered, g)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	aggs := make(map[int]*league.Aggregate)
	history := make(map[int][]result)
	for _, t := range c.ref.Teams() {
		aggs[t.ID] = &league.Aggregate{TeamID: t.ID}
	}

	side := func(teamID int, runsFor, runsAgainst int32, home bool) {
		a, ok := aggs[teamID]
		if !ok {
			return
		}
		a.GamesPlayed++
		a.RunsFor += int(runsFor)
		a.RunsAgainst += int(runsAgainst)

		var r result
		switch {
		case runsFor > runsAgainst:
			r = resultWin
			a.Wins++
			if home {
				a.HomeWins++
			} else {
				a.AwayWins++
			}
		case runsFor < runsAgainst:
			r = resultLoss
			a.Losses++
			if home {
				a.HomeLosses++
			} else {
				a.AwayLosses++
			}
		default:
			r = resultDraw
			a.Draws++
		}
		history[teamID] = append(history[teamID], r)
	}

	for _, g := range ordered {
		side(g.HomeTeamID, g.HomeScore.Int32, g.AwayScore.Int32, true)
		side(g.AwayTeamID, g.AwayScore.Int32, g.HomeScore.Int32, false)
	}

	out := make(map[int]league.Aggregate, len(aggs))
	for id, a := range aggs {
		applyForm(a, history[id])
		out[id] = *a
	}
	return out
}

// applyForm fills last-10 and streak from the date-ordered results.
func applyForm(a *league.Aggregate, results []result) {
	recent := results
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	for _, r := range recent {
		switch r {
		case resultWin:
			a.Last10Wins++
		case resultLoss:
			a.Last10Losses++
		default:
			a.Last10Draws++
		}
	}

	if len(results) == 0 {
		return
	}
	last := results[len(results)-1]
	n := 0
	for i := len(results) - 1; i >= 0 && results[i] == last; i-- {
		n++
	}
	a.Streak = string(last) + strconv.Itoa(n)
}

// Rank orders one league's teams by win percentage, then wins, then fewest losses, with
// the team id as the final tie-break. Ranks are 1..N without gaps.
func (c *StandingsCalculator) Rank(lg league.League, aggs map[int]league.Aggregate) []league.StandingEntry {
	teams := c.ref.InLeague(lg)
	entries := make([]league.StandingEntry, 0, len(teams))
	for _, t := range teams {
		a, ok := aggs[t.ID]
		if !ok {
			a = league.Aggregate{TeamID: t.ID}
		}
		entries = append(entries, league.StandingEntry{
			Aggregate:    a,
			Abbreviation: t.Abbreviation,
			Name:         t.Name,
			League:       t.League,
			Pct:          a.WinPct(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.Pct != b.Pct:
			return a.Pct > b.Pct
		case a.Wins != b.Wins:
			return a.Wins > b.Wins
		case a.Losses != b.Losses:
			return a.Losses < b.Losses
		}
		return a.TeamID < b.TeamID
	})

	for i := range entries {
		entries[i].Rank = i + 1
		if i > 0 {
			entries[i].GamesBehind = gamesBehind(entries[0].Aggregate, entries[i].Aggregate)
		}
	}
	return entries
}

func gamesBehind(leader, team league.Aggregate) float64 {
	return float64((leader.Wins-team.Wins)+(team.Losses-leader.Losses)) / 2
}

// Compute aggregates and ranks both leagues.
func (c *StandingsCalculator) Compute(games []league.Game) map[league.League][]league.StandingEntry {
	aggs := c.Aggregate(games)
	out := make(map[league.League][]league.StandingEntry, len(league.Leagues))
	for _, lg := range league.Leagues {
		out[lg] = c.Rank(lg, aggs)
	}
	return out
}

// HeadToHead is team's record against opponent over the completed games.
func (c *StandingsCalculator) HeadToHead(games []league.Game, team, opponent int) league.HeadToHead {
	h := league.HeadToHead{TeamID: team, OpponentID: opponent}
	for _, g := range games {
		if !countable(g) {
			continue
		}

		var runsFor, runsAgainst int32
		switch {
		case g.HomeTeamID == team && g.AwayTeamID == opponent:
			runsFor, runsAgainst = g.HomeScore.Int32, g.AwayScore.Int32
		case g.AwayTeamID == team && g.HomeTeamID == opponent:
			runsFor, runsAgainst = g.AwayScore.Int32, g.HomeScore.Int32
		default:
			continue
		}

		h.GamesPlayed++
		h.RunsFor += int(runsFor)
		h.RunsAgainst += int(runsAgainst)
		switch {
		case runsFor > runsAgainst:
			h.Wins++
		case runsFor < runsAgainst:
			h.Losses++
		default:
			h.Draws++
		}
	}
	return h
}

// ValidateAggregates returns the ids of teams whose W+L+D differs from GP.
func ValidateAggregates(entries []league.StandingEntry) []int {
	var bad []int
	for _, e := range entries {
		if !e.Consistent() {
			bad = append(bad, e.TeamID)
		}
	}
	return bad
}

// CompareLeague averages a league table. Per-game run averages skip teams that have
// not played.
func CompareLeague(lg league.League, entries []league.StandingEntry) league.LeagueComparison {
	c := league.LeagueComparison{League: lg, Teams: len(entries)}
	if len(entries) == 0 {
		return c
	}

	var pct, scored, allowed float64
	played := 0
	for _, e := range entries {
		c.TotalGames += e.GamesPlayed
		pct += e.WinPct()
		if e.GamesPlayed == 0 {
			continue
		}
		played++
		scored += float64(e.RunsFor) / float64(e.GamesPlayed)
		allowed += float64(e.RunsAgainst) / float64(e.GamesPlayed)
	}
	c.AvgWinPct = pct / float64(len(entries))
	if played > 0 {
		c.AvgRunsPerGame = scored / float64(played)
		c.AvgRunsAllowedPerGame = allowed / float64(played)
	}
	return c
}
