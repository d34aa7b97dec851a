package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/export"
	"github.com/fortuna/pennant/internal/league"
)

const sample = `# 2025-07-01
YOG 3-4 HAN (Central)
# 1|2|YOG|HAN

SEI vs RAK (Pacific) [POSTPONED]
# 11|9|SEI|RAK

# 2025-07-02
YDB 2-2 SOF (Pacific) [DRAW]
# 3|7|YDB|SOF
`

func TestGroupObservations(t *testing.T) {
	t.Parallel()

	games, err := export.Decode(strings.NewReader(sample), league.DefaultReference())
	require.NoError(t, err)

	now := time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)
	got := groupObservations(games, now)
	require.Len(t, got, 2)
	require.Len(t, got["2025-07-01"], 2)
	require.Len(t, got["2025-07-02"], 1)

	for _, obs := range got["2025-07-01"] {
		assert.Equal(t, importSource, obs.Source)
		assert.Equal(t, now, obs.ObservedAt)
	}
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	magic := 12
	elim := 9
	entries := []league.StandingEntry{
		{Aggregate: league.Aggregate{TeamID: 2, GamesPlayed: 80, Wins: 48, Losses: 30, Draws: 2, Streak: "W3"},
			Abbreviation: "HAN", Rank: 1, Pct: 0.615, MagicNumber: &magic},
		{Aggregate: league.Aggregate{TeamID: 1, GamesPlayed: 80, Wins: 44, Losses: 34, Draws: 2, Streak: "L1"},
			Abbreviation: "YOG", Rank: 2, Pct: 0.564, GamesBehind: 4, EliminationNumber: &elim},
	}

	var buf bytes.Buffer
	printTable(&buf, league.Central, entries)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Central League\n"))
	assert.Contains(t, out, "HAN")
	assert.Contains(t, out, "0.615")
	assert.Contains(t, out, "4.0")
	assert.Contains(t, out, "W3")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)
}

func TestRootCommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"backfill", "export", "import", "standings", "migrate"}, names)

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
}
