package service

import (
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/fortuna/pennant/internal/league"
)

// PennantAnalyzer derives magic and elimination numbers from ranked standings.
type PennantAnalyzer struct {
	totalGames int
	closeAt    int
	dangerAt   int
}

// NewPennantAnalyzer reads the season length and thresholds from rules.
func NewPennantAnalyzer(rules league.Rules) *PennantAnalyzer {
	return &PennantAnalyzer{
		totalGames: rules.TotalGamesInSeason,
		closeAt:    rules.CloseThreshold,
		dangerAt:   rules.DangerThreshold,
	}
}

// Analyze annotates one league's entries, which must already be in rank order. The
// input slice is not modified.
func (p *PennantAnalyzer) Analyze(ranked []league.StandingEntry) []league.StandingEntry {
	out := make([]league.StandingEntry, len(ranked))
	copy(out, ranked)
	for i := range out {
		out[i].MagicNumber, out[i].EliminationNumber, out[i].ClinchStatus = nil, nil, ""
		out[i].Remaining = max(0, p.totalGames-out[i].GamesPlayed)
	}
	if len(out) == 0 {
		return out
	}

	leader := &out[0]
	if len(out) == 1 {
		leader.ClinchStatus = league.ClinchChampion
		return out
	}

	runnerUp := out[1]
	magic := max(0, p.maxWins(runnerUp)+1-leader.Wins)
	leader.MagicNumber = &magic
	switch {
	case magic == 0:
		leader.ClinchStatus = league.ClinchChampion
	case magic <= p.closeAt:
		leader.ClinchStatus = league.ClinchClose
	}

	for i := 1; i < len(out); i++ {
		e := &out[i]
		elim := 0
		if mw := p.maxWins(*e); mw > leader.Wins {
			elim = mw + 1 - leader.Wins
		}
		e.EliminationNumber = &elim
		switch {
		case elim == 0:
			e.ClinchStatus = league.ClinchEliminated
		case elim <= p.dangerAt:
			e.ClinchStatus = league.ClinchDanger
		}
	}
	return out
}

func (p *PennantAnalyzer) maxWins(e league.StandingEntry) int {
	return e.Wins + max(0, p.totalGames-e.GamesPlayed)
}

// AnalyzeAll runs Analyze for each league concurrently.
func (p *PennantAnalyzer) AnalyzeAll(standings map[league.League][]league.StandingEntry) map[league.League][]league.StandingEntry {
	out := make(map[league.League][]league.StandingEntry, len(standings))
	var mu sync.Mutex
	var wg conc.WaitGroup
	for lg, entries := range standings {
		wg.Go(func() {
			analyzed := p.Analyze(entries)
			mu.Lock()
			out[lg] = analyzed
			mu.Unlock()
		})
	}
	wg.Wait()
	return out
}

// Scenarios projects an analyzed, rank-ordered league table onto leader, contenders
// and eliminated teams. Ties at rank 1 leave the first entry as leader.
func Scenarios(ranked []league.StandingEntry) league.ClinchScenario {
	out := league.ClinchScenario{
		Contenders: []league.ScenarioTeam{},
		Eliminated: []league.ScenarioTeam{},
	}
	for i, e := range ranked {
		t := league.ScenarioTeam{
			TeamID:            e.TeamID,
			Abbreviation:      e.Abbreviation,
			GamesBehind:       e.GamesBehind,
			MagicNumber:       e.MagicNumber,
			EliminationNumber: e.EliminationNumber,
			ClinchStatus:      e.ClinchStatus,
		}
		switch {
		case i == 0:
			out.Leader = &t
		case e.ClinchStatus == league.ClinchEliminated:
			out.Eliminated = append(out.Eliminated, t)
		default:
			out.Contenders = append(out.Contenders, t)
		}
	}
	return out
}
