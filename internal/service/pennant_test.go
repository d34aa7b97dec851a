package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/league"
)

func entry(id, gp, w, l int) league.StandingEntry {
	return league.StandingEntry{Aggregate: league.Aggregate{
		TeamID: id, GamesPlayed: gp, Wins: w, Losses: l, Draws: gp - w - l,
	}}
}

func TestAnalyze_MagicNumberScenario(t *testing.T) {
	t.Parallel()

	p := NewPennantAnalyzer(league.DefaultRules())
	in := []league.StandingEntry{
		entry(1, 60, 80, 0),
		entry(2, 62, 75, 0),
		entry(3, 70, 30, 40),
	}
	in[0].Draws, in[1].Draws = 0, 0

	out := p.Analyze(in)
	require.Len(t, out, 3)

	leader := out[0]
	assert.Equal(t, 83, leader.Remaining)
	require.NotNil(t, leader.MagicNumber)
	assert.Equal(t, 77, *leader.MagicNumber)
	assert.Empty(t, leader.ClinchStatus)

	require.NotNil(t, out[1].EliminationNumber)
	assert.Equal(t, 75+81+1-80, *out[1].EliminationNumber)
	assert.Nil(t, out[1].MagicNumber)

	assert.Nil(t, in[0].MagicNumber, "input must stay untouched")
}

func TestAnalyze_Statuses(t *testing.T) {
	t.Parallel()

	p := NewPennantAnalyzer(league.Rules{TotalGamesInSeason: 143, CloseThreshold: 5, DangerThreshold: 3})

	tests := []struct {
		name         string
		entries      []league.StandingEntry
		leaderStatus league.ClinchStatus
		leaderMagic  *int
		otherStatus  []league.ClinchStatus
		otherElim    []int
	}{
		{
			name:         "clinched",
			entries:      []league.StandingEntry{entry(1, 130, 85, 45), entry(2, 140, 70, 70)},
			leaderStatus: league.ClinchChampion,
			leaderMagic:  intPtr(0),
			otherStatus:  []league.ClinchStatus{league.ClinchEliminated},
			otherElim:    []int{0},
		},
		{
			name:         "close race",
			entries:      []league.StandingEntry{entry(1, 135, 80, 55), entry(2, 137, 78, 59), entry(3, 139, 60, 79)},
			leaderStatus: league.ClinchClose,
			leaderMagic:  intPtr(5),
			otherStatus:  []league.ClinchStatus{"", league.ClinchEliminated},
			otherElim:    []int{5, 0},
		},
		{
			name:         "danger",
			entries:      []league.StandingEntry{entry(1, 120, 80, 40), entry(2, 120, 75, 45), entry(3, 140, 79, 61)},
			leaderStatus: "",
			leaderMagic:  intPtr(19),
			otherStatus:  []league.ClinchStatus{"", league.ClinchDanger},
			otherElim:    []int{19, 3},
		},
		{
			name:         "single team",
			entries:      []league.StandingEntry{entry(1, 10, 6, 4)},
			leaderStatus: league.ClinchChampion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Analyze(tt.entries)
			assert.Equal(t, tt.leaderStatus, out[0].ClinchStatus)
			assert.Equal(t, tt.leaderMagic, out[0].MagicNumber)
			assert.Nil(t, out[0].EliminationNumber)
			for i, want := range tt.otherStatus {
				e := out[i+1]
				assert.Equal(t, want, e.ClinchStatus, "team %d", e.TeamID)
				require.NotNil(t, e.EliminationNumber)
				assert.Equal(t, tt.otherElim[i], *e.EliminationNumber, "team %d", e.TeamID)
			}
		})
	}
}

func TestAnalyze_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NewPennantAnalyzer(league.DefaultRules()).Analyze(nil))
}

func TestAnalyzeAll(t *testing.T) {
	t.Parallel()

	calc := NewStandingsCalculator(league.DefaultReference())
	p := NewPennantAnalyzer(league.DefaultRules())

	out := p.AnalyzeAll(calc.Compute([]league.Game{final(0, 1, 2, 3, 2), final(0, 9, 10, 1, 0)}))
	require.Len(t, out, 2)
	for _, lg := range league.Leagues {
		require.Len(t, out[lg], 6)
		require.NotNil(t, out[lg][0].MagicNumber)
		assert.Equal(t, 143, out[lg][0].Remaining+out[lg][0].GamesPlayed)
	}
	assert.Equal(t, 1, out[league.Central][0].TeamID)
}

func intPtr(n int) *int { return &n }

func TestScenarios(t *testing.T) {
	t.Parallel()

	out := NewPennantAnalyzer(league.DefaultRules()).Analyze([]league.StandingEntry{
		entry(1, 100, 70, 30),
		entry(2, 100, 65, 35),
		entry(3, 140, 30, 110),
	})
	sc := Scenarios(out)

	require.NotNil(t, sc.Leader)
	assert.Equal(t, 1, sc.Leader.TeamID)
	require.NotNil(t, sc.Leader.MagicNumber)
	require.Len(t, sc.Contenders, 1)
	assert.Equal(t, 2, sc.Contenders[0].TeamID)
	require.Len(t, sc.Eliminated, 1)
	assert.Equal(t, 3, sc.Eliminated[0].TeamID)
	assert.Equal(t, league.ClinchEliminated, sc.Eliminated[0].ClinchStatus)

	empty := Scenarios(nil)
	assert.Nil(t, empty.Leader)
	assert.NotNil(t, empty.Contenders)
	assert.NotNil(t, empty.Eliminated)
}
