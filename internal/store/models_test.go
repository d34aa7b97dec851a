package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/league"
)

func TestInningsEncoding(t *testing.T) {
	t.Parallel()

	in := []sql.NullInt32{{Int32: 1, Valid: true}, {Int32: 0, Valid: true}, {}}
	enc := EncodeInnings(in)
	assert.Equal(t, pq.StringArray{"1", "0", "X"}, enc)
	assert.Equal(t, in, DecodeInnings(enc))
	assert.Nil(t, DecodeInnings(nil))
}

func TestGameRowOrdersPairKey(t *testing.T) {
	t.Parallel()

	g := league.Game{
		Date:       time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		HomeTeamID: 11,
		AwayTeamID: 3,
		HomeAbbr:   "SEI",
		AwayAbbr:   "YDB",
		League:     league.Pacific,
		Status:     league.StatusCompleted,
		HomeScore:  sql.NullInt32{Int32: 2, Valid: true},
		AwayScore:  sql.NullInt32{Int32: 5, Valid: true},
		Venue:      sql.NullString{String: "ベルーナドーム", Valid: true},
	}
	g.Finalize()

	row := GameRowFrom(g, "test")
	assert.Equal(t, 3, row.TeamLow)
	assert.Equal(t, 11, row.TeamHigh)
	assert.Equal(t, "away", row.Winner)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), row.GameDate)

	back := row.Game()
	assert.Equal(t, g.HomeTeamID, back.HomeTeamID)
	assert.Equal(t, g.AwayScore, back.AwayScore)
	assert.Equal(t, league.WinnerAway, back.Winner)
	assert.Equal(t, g.Venue, back.Venue)
}

func TestStandingRowRoundTrip(t *testing.T) {
	t.Parallel()

	magic := 12
	e := league.StandingEntry{
		Aggregate:    league.Aggregate{TeamID: 2, GamesPlayed: 10, Wins: 7, Losses: 2, Draws: 1, Streak: "W3"},
		Abbreviation: "HAN",
		League:       league.Central,
		Rank:         1,
		Pct:          7.0 / 9.0,
		Remaining:    133,
		MagicNumber:  &magic,
		ClinchStatus: league.ClinchClose,
	}

	row := StandingRowFrom(e, time.Now())
	assert.True(t, row.MagicNumber.Valid)
	assert.False(t, row.EliminationNumber.Valid)

	back := row.Entry()
	require.NotNil(t, back.MagicNumber)
	assert.Equal(t, 12, *back.MagicNumber)
	assert.Nil(t, back.EliminationNumber)
	assert.Equal(t, e.Aggregate, back.Aggregate)
	assert.Equal(t, league.ClinchClose, back.ClinchStatus)
}
