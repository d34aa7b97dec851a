package league

import (
	"database/sql"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func score(n int32) sql.NullInt32 { return sql.NullInt32{Int32: n, Valid: true} }

func TestGame_Finalize_Draw(t *testing.T) {
	t.Parallel()

	g := Game{
		Date:       time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
		HomeTeamID: 2, AwayTeamID: 1,
		HomeScore: score(4), AwayScore: score(4),
		Status: StatusCompleted,
	}
	g.Finalize()

	assert.True(t, g.IsDraw)
	assert.Equal(t, WinnerDraw, g.Winner)
	assert.Equal(t, "2025-06-01", g.DateKey())
	require.NoError(t, g.Validate())
}

func TestGame_Finalize_PostponedDropsScores(t *testing.T) {
	t.Parallel()

	g := Game{
		Date:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		HomeTeamID: 2, AwayTeamID: 1,
		HomeScore: score(1), AwayScore: score(0),
		Status: StatusPostponed,
	}
	g.Finalize()

	assert.False(t, g.HomeScore.Valid)
	assert.False(t, g.AwayScore.Valid)
	assert.Equal(t, WinnerNone, g.Winner)
	require.NoError(t, g.Validate())
}

func TestGame_Finalize_Winner(t *testing.T) {
	t.Parallel()

	g := Game{Date: time.Now(), HomeTeamID: 3, AwayTeamID: 4, HomeScore: score(2), AwayScore: score(5), Status: StatusCompleted}
	g.Finalize()
	assert.Equal(t, WinnerAway, g.Winner)

	g.HomeScore = score(9)
	g.Finalize()
	assert.Equal(t, WinnerHome, g.Winner)

	g.Status = StatusScheduled
	g.Finalize()
	assert.Equal(t, WinnerNone, g.Winner)
	assert.False(t, g.IsDraw)
}

func TestGame_Validate(t *testing.T) {
	t.Parallel()

	base := Game{Date: time.Now(), HomeTeamID: 1, AwayTeamID: 2, Status: StatusCompleted, HomeScore: score(1), AwayScore: score(0)}
	base.Finalize()
	require.NoError(t, base.Validate())

	missingScore := base
	missingScore.AwayScore = sql.NullInt32{}
	assert.True(t, errors.Is(missingScore.Validate(), ErrInvalidRecord))

	selfGame := base
	selfGame.AwayTeamID = 1
	assert.True(t, errors.Is(selfGame.Validate(), ErrInvalidRecord))

	badDraw := base
	badDraw.IsDraw = true
	assert.True(t, errors.Is(badDraw.Validate(), ErrInvalidRecord))
}

func TestGame_Counters(t *testing.T) {
	t.Parallel()

	g := Game{
		InningsAway: []sql.NullInt32{score(0), score(1), score(0)},
		InningsHome: []sql.NullInt32{score(2), score(0), {}},
		Venue:       sql.NullString{String: "甲子園", Valid: true},
		HomeHits:    score(7),
	}
	assert.Equal(t, 6, g.InningEntries())
	assert.Equal(t, 3, g.FinalInningCount())
	assert.Equal(t, 2, g.PopulatedOptional())

	g.FinalInning = score(10)
	assert.Equal(t, 10, g.FinalInningCount())
}

func TestStatus_TextRoundTrip(t *testing.T) {
	t.Parallel()

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("cancelled")))
	assert.Equal(t, StatusPostponed, s)

	b, err := StatusCompleted.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", string(b))

	_, err = Status("LATER").MarshalText()
	assert.Error(t, err)
	assert.True(t, StatusPostponed.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}

func TestAggregate_WinPct(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Aggregate{Draws: 3, GamesPlayed: 3}.WinPct())
	assert.InDelta(t, 0.6, Aggregate{Wins: 6, Losses: 4, Draws: 2, GamesPlayed: 12}.WinPct(), 1e-9)
	assert.True(t, Aggregate{Wins: 6, Losses: 4, Draws: 2, GamesPlayed: 12}.Consistent())
}
