package service

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/cache"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

type fakeGameStore struct {
	games       []league.Game
	byDateCalls int
	staleBefore time.Time
}

func (f *fakeGameStore) GetByDate(_ context.Context, date time.Time) ([]league.Game, error) {
	f.byDateCalls++
	return f.filter(func(g league.Game) bool { return g.Date.Equal(league.Day(date)) }), nil
}

func (f *fakeGameStore) ListRange(_ context.Context, from, to time.Time) ([]league.Game, error) {
	return f.filter(func(g league.Game) bool { return !g.Date.Before(from) && !g.Date.After(to) }), nil
}

func (f *fakeGameStore) ListSeason(_ context.Context, year int) ([]league.Game, error) {
	return f.filter(func(g league.Game) bool { return g.Date.Year() == year }), nil
}

func (f *fakeGameStore) GetByTeam(_ context.Context, teamID int, from, to time.Time) ([]league.Game, error) {
	return f.filter(func(g league.Game) bool {
		return g.Involves(teamID) && !g.Date.Before(from) && !g.Date.After(to)
	}), nil
}

func (f *fakeGameStore) GetUpcomingGames(_ context.Context, from time.Time, limit int) ([]league.Game, error) {
	out := f.filter(func(g league.Game) bool {
		return g.Status == league.StatusScheduled && !g.Date.Before(from)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeGameStore) CleanupStaleGames(_ context.Context, before time.Time) (int64, error) {
	f.staleBefore = before
	return 2, nil
}

func (f *fakeGameStore) filter(keep func(league.Game) bool) []league.Game {
	var out []league.Game
	for _, g := range f.games {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return cache.ErrMiss
	}
	return sonic.Unmarshal(raw, dest)
}

func (m *memCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	m.mu.Unlock()
	return nil
}

type fakeStandingStore struct {
	stored map[league.League][]league.StandingEntry
	lists  int
}

func (f *fakeStandingStore) ReplaceByLeague(_ context.Context, lg league.League, entries []league.StandingEntry) error {
	if f.stored == nil {
		f.stored = map[league.League][]league.StandingEntry{}
	}
	f.stored[lg] = entries
	return nil
}

func (f *fakeStandingStore) ListByLeague(_ context.Context, lg league.League) ([]league.StandingEntry, error) {
	f.lists++
	return f.stored[lg], nil
}

type recordingPublisher struct {
	leagues []league.League
}

func (r *recordingPublisher) PublishStandings(_ context.Context, lg league.League, _ []league.StandingEntry) error {
	r.leagues = append(r.leagues, lg)
	return nil
}

func seasonGames() []league.Game {
	return []league.Game{
		final(0, 1, 2, 3, 2),
		final(1, 2, 1, 4, 4),
		final(2, 7, 8, 1, 0),
		final(3, 3, 10, 5, 6),
	}
}

func TestStandingsService_Recompute(t *testing.T) {
	t.Parallel()

	games := &fakeGameStore{games: seasonGames()}
	store := &fakeStandingStore{}
	c := newMemCache()
	pub := &recordingPublisher{}
	svc := NewStandingsService(games, store, c, pub, league.DefaultReference(), league.DefaultRules(), logging.NewNop())

	all, err := svc.Recompute(context.Background(), 2025)
	require.NoError(t, err)

	require.Len(t, all[league.Central], 6)
	require.Len(t, all[league.Pacific], 6)
	assert.Equal(t, 1, all[league.Central][0].TeamID)
	assert.Equal(t, 1, all[league.Central][0].Wins)
	assert.Equal(t, 1, all[league.Central][0].Draws)
	assert.NotNil(t, all[league.Central][0].MagicNumber)

	assert.Equal(t, all[league.Central], store.stored[league.Central])
	assert.Equal(t, []league.League{league.Central, league.Pacific}, pub.leagues)
	assert.Contains(t, c.data, cache.StandingsKey(league.Pacific))

	var gp int
	for _, lg := range league.Leagues {
		for _, e := range all[lg] {
			assert.True(t, e.Consistent())
			gp += e.GamesPlayed
		}
	}
	assert.Equal(t, 2*len(games.games), gp)
}

func TestStandingsService_GetUsesCache(t *testing.T) {
	t.Parallel()

	store := &fakeStandingStore{}
	c := newMemCache()
	svc := NewStandingsService(&fakeGameStore{games: seasonGames()}, store, c, nil,
		league.DefaultReference(), league.DefaultRules(), logging.NewNop())

	_, err := svc.Recompute(context.Background(), 2025)
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), league.Pacific)
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, 7, got[0].TeamID)
	assert.Equal(t, 0, store.lists)

	c.data = map[string][]byte{}
	_, err = svc.Get(context.Background(), league.Pacific)
	require.NoError(t, err)
	assert.Equal(t, 1, store.lists)

	_, err = svc.Get(context.Background(), league.League("Eastern"))
	assert.ErrorIs(t, err, league.ErrInvalidInput)
}

func newGameService(games *fakeGameStore, c Cache, now time.Time) *GameService {
	svc := NewGameService(games, league.DefaultReference(), c, logging.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestGameService_GamesByDateCachesSettledDates(t *testing.T) {
	t.Parallel()

	games := &fakeGameStore{games: seasonGames()}
	c := newMemCache()
	svc := newGameService(games, c, seasonStart.AddDate(0, 0, 10))

	for range 2 {
		got, err := svc.GetGamesByDate(context.Background(), seasonStart)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "HAN", got[0].AwayTeam.Abbreviation)
		assert.Equal(t, "YOG", got[0].HomeTeam.Abbreviation)
	}
	assert.Equal(t, 1, games.byDateCalls)

	svc.InvalidateDates(context.Background(), seasonStart)
	_, err := svc.GetGamesByDate(context.Background(), seasonStart)
	require.NoError(t, err)
	assert.Equal(t, 2, games.byDateCalls)
}

func TestGameService_TodayIsNotCached(t *testing.T) {
	t.Parallel()

	games := &fakeGameStore{games: seasonGames()}
	svc := newGameService(games, newMemCache(), seasonStart.Add(3*time.Hour))

	for range 2 {
		_, err := svc.GetGamesByDate(context.Background(), seasonStart)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, games.byDateCalls)
}

func TestGameService_HeadToHead(t *testing.T) {
	t.Parallel()

	svc := newGameService(&fakeGameStore{games: seasonGames()}, nil, seasonStart)

	h2h, err := svc.HeadToHead(context.Background(), 2025, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, h2h.GamesPlayed)
	assert.Equal(t, 1, h2h.Wins)
	assert.Equal(t, 1, h2h.Draws)

	_, err = svc.HeadToHead(context.Background(), 2025, 1, 99)
	assert.ErrorIs(t, err, league.ErrNotFound)

	_, err = svc.HeadToHead(context.Background(), 2025, 1, 1)
	assert.ErrorIs(t, err, league.ErrInvalidInput)
}

func TestGameService_Upcoming(t *testing.T) {
	t.Parallel()

	scheduled := league.Game{
		Date:       seasonStart.AddDate(0, 0, 5),
		HomeTeamID: 4, HomeAbbr: "HIR",
		AwayTeamID: 5, AwayAbbr: "CHU",
		League: league.Central,
		Status: league.StatusScheduled,
	}
	games := &fakeGameStore{games: append(seasonGames(), scheduled)}
	svc := newGameService(games, nil, seasonStart.AddDate(0, 0, 4))

	got, err := svc.GetUpcomingGames(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CHU", got[0].AwayTeam.Abbreviation)
}

func TestGameService_Export(t *testing.T) {
	t.Parallel()

	svc := newGameService(&fakeGameStore{games: seasonGames()}, nil, seasonStart)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), &buf, seasonStart, seasonStart.AddDate(0, 0, 1)))
	out := buf.String()
	assert.Contains(t, out, "# 2025-03-28\nHAN 2-3 YOG (Central)\n")
	assert.Contains(t, out, "YOG 4-4 HAN (Central) [DRAW]")
	assert.Equal(t, 2, strings.Count(out, "# 20"))

	err := svc.Export(context.Background(), &buf, seasonStart, seasonStart.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, league.ErrInvalidInput)
}

func TestGameService_CleanupStaleGames(t *testing.T) {
	t.Parallel()

	games := &fakeGameStore{}
	svc := newGameService(games, nil, seasonStart.Add(time.Hour))

	n, err := svc.CleanupStaleGames(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, seasonStart.AddDate(0, 0, -3), games.staleBefore)
}

func innings(runs ...int32) []sql.NullInt32 {
	out := make([]sql.NullInt32, len(runs))
	for i, r := range runs {
		out[i] = sql.NullInt32{Int32: r, Valid: true}
	}
	return out
}

func TestGameService_Scoreboard(t *testing.T) {
	t.Parallel()

	games := seasonGames()
	games[0].InningsAway = innings(0, 1, 0, 0, 0, 1, 0, 0, 0)
	games[0].InningsHome = innings(1, 0, 0, 2, 0, 0, 0, 0)
	svc := newGameService(&fakeGameStore{games: games}, nil, seasonStart.AddDate(0, 0, 10))

	sb, err := svc.GetScoreboard(context.Background(), seasonStart, 2)
	require.NoError(t, err)
	require.Len(t, sb.Innings, 9)
	assert.Equal(t, 2, sb.AwayRuns)
	assert.Equal(t, 3, sb.HomeRuns)
	assert.False(t, sb.ExtraInnings)
	require.NotNil(t, sb.Innings[8].Away)
	assert.Equal(t, 0, *sb.Innings[8].Away)
	assert.Nil(t, sb.Innings[8].Home)
	assert.Equal(t, "YOG", sb.Game.HomeTeam.Abbreviation)

	_, err = svc.GetScoreboard(context.Background(), seasonStart, 5)
	assert.ErrorIs(t, err, league.ErrNotFound)

	_, err = svc.GetScoreboard(context.Background(), seasonStart, 99)
	assert.ErrorIs(t, err, league.ErrNotFound)
}

func TestBuildScoreboard(t *testing.T) {
	t.Parallel()

	t.Run("no inning data", func(t *testing.T) {
		sb := BuildScoreboard(GameSummary{Game: league.Game{Status: league.StatusScheduled}})
		assert.NotNil(t, sb.Innings)
		assert.Empty(t, sb.Innings)
	})

	t.Run("short arrays pad to nine", func(t *testing.T) {
		sb := BuildScoreboard(GameSummary{Game: league.Game{
			InningsAway: innings(0, 0, 4, 0, 0),
			InningsHome: innings(0, 1, 0, 0, 0),
		}})
		require.Len(t, sb.Innings, 9)
		assert.Nil(t, sb.Innings[5].Away)
		assert.Equal(t, 4, sb.AwayRuns)
		assert.Equal(t, 1, sb.HomeRuns)
	})

	t.Run("extra innings", func(t *testing.T) {
		sb := BuildScoreboard(GameSummary{Game: league.Game{
			InningsAway: innings(0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1),
			InningsHome: innings(0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		}})
		assert.Len(t, sb.Innings, 11)
		assert.True(t, sb.ExtraInnings)
		assert.Equal(t, 11, sb.Innings[10].Inning)
	})
}
