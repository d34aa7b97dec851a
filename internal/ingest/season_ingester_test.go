package ingest

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/ingest/npb"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
	"github.com/fortuna/pennant/internal/reconciliation"
)

var day = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func n(v int32) sql.NullInt32 { return sql.NullInt32{Int32: v, Valid: true} }

func game(home, away int, status league.Status) league.Game {
	ref := league.DefaultReference()
	h, _ := ref.ByID(home)
	a, _ := ref.ByID(away)
	return league.Game{
		Date:       day,
		HomeTeamID: home, HomeAbbr: h.Abbreviation,
		AwayTeamID: away, AwayAbbr: a.Abbreviation,
		League: h.League,
		Status: status,
	}
}

func finalGame(home, away int, hs, as int32) league.Game {
	g := game(home, away, league.StatusCompleted)
	g.HomeScore, g.AwayScore = n(hs), n(as)
	g.Finalize()
	return g
}

func observe(games ...league.Game) npb.ExtractResult {
	res := npb.ExtractResult{Date: day, Reasons: map[string]int{}}
	for _, g := range games {
		res.Observations = append(res.Observations, league.Observation{Game: g, Source: "test"})
		res.Accepted++
	}
	return res
}

type stubSource struct {
	res npb.ExtractResult
	err error
}

func (s *stubSource) IngestDate(context.Context, time.Time) (npb.ExtractResult, error) {
	return s.res, s.err
}

type memWriter struct {
	rows     map[reconciliation.PairKey]league.Game
	merges   int
	replaces int
}

func newMemWriter(games ...league.Game) *memWriter {
	w := &memWriter{rows: map[reconciliation.PairKey]league.Game{}}
	for _, g := range games {
		w.rows[reconciliation.PairOf(&g)] = g
	}
	return w
}

func (w *memWriter) GetByDate(context.Context, time.Time) ([]league.Game, error) {
	var out []league.Game
	for _, g := range w.rows {
		out = append(out, g)
	}
	return out, nil
}

func (w *memWriter) MergeDate(_ context.Context, _ time.Time, games []league.Game, _ string) error {
	w.merges++
	for _, g := range games {
		w.rows[reconciliation.PairOf(&g)] = g
	}
	return nil
}

func (w *memWriter) ReplaceDate(_ context.Context, _ time.Time, games []league.Game, _ string) error {
	w.replaces++
	w.rows = map[reconciliation.PairKey]league.Game{}
	for _, g := range games {
		w.rows[reconciliation.PairOf(&g)] = g
	}
	return nil
}

type sinkRecorder struct {
	archived    int
	finals      []league.Game
	invalidated []time.Time
}

func (r *sinkRecorder) PutGames(_ context.Context, games []league.Game) error {
	r.archived += len(games)
	return errors.New("archive offline")
}

func (r *sinkRecorder) PublishGameFinal(_ context.Context, g league.Game) error {
	r.finals = append(r.finals, g)
	return nil
}

func (r *sinkRecorder) InvalidateDates(_ context.Context, dates ...time.Time) {
	r.invalidated = append(r.invalidated, dates...)
}

func newIngester(src DateSource, w GameWriter, sinks *sinkRecorder) *SeasonIngester {
	engine := reconciliation.NewEngine(league.DefaultReference(), logging.NewNop())
	return NewSeasonIngester(src, engine, w, "test", logging.NewNop(),
		WithArchive(sinks), WithPublisher(sinks), WithInvalidator(sinks))
}

func TestSeasonIngester_ScheduledBecomesFinal(t *testing.T) {
	t.Parallel()

	writer := newMemWriter(game(2, 1, league.StatusScheduled))
	sinks := &sinkRecorder{}
	src := &stubSource{res: observe(finalGame(2, 1, 5, 3))}
	ing := newIngester(src, writer, sinks)

	res, err := ing.IngestDate(context.Background(), day, ModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Replaced)
	assert.Equal(t, 1, res.FinalCount)
	assert.Equal(t, 1, writer.merges)

	stored, _ := writer.GetByDate(context.Background(), day)
	require.Len(t, stored, 1)
	assert.Equal(t, league.StatusCompleted, stored[0].Status)

	require.Len(t, sinks.finals, 1)
	assert.Equal(t, league.WinnerHome, sinks.finals[0].Winner)
	assert.Equal(t, 1, sinks.archived, "archive failures do not fail the date")
	assert.Equal(t, []time.Time{day}, sinks.invalidated)

	// A second identical pass changes nothing and announces nothing.
	res, err = ing.IngestDate(context.Background(), day, ModeMerge)
	require.NoError(t, err)
	assert.False(t, res.Summary.Changed())
	assert.Equal(t, 0, res.FinalCount)
	assert.Equal(t, 1, writer.merges)
	assert.Len(t, sinks.finals, 1)
}

func TestSeasonIngester_MergeKeepsBetterStoredRecord(t *testing.T) {
	t.Parallel()

	writer := newMemWriter(finalGame(2, 1, 5, 3))
	sinks := &sinkRecorder{}
	src := &stubSource{res: observe(game(2, 1, league.StatusScheduled))}
	ing := newIngester(src, writer, sinks)

	res, err := ing.IngestDate(context.Background(), day, ModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Kept)
	assert.Equal(t, 0, writer.merges)
	assert.Empty(t, sinks.finals)
}

func TestSeasonIngester_ReplaceDropsStaleRecords(t *testing.T) {
	t.Parallel()

	writer := newMemWriter(game(2, 1, league.StatusScheduled), game(4, 3, league.StatusScheduled))
	postponed := game(2, 1, league.StatusPostponed)
	src := &stubSource{res: observe(postponed)}
	ing := newIngester(src, writer, &sinkRecorder{})

	res, err := ing.IngestDate(context.Background(), day, ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, writer.replaces)
	assert.Equal(t, 1, res.Stored)

	stored, _ := writer.GetByDate(context.Background(), day)
	require.Len(t, stored, 1)
	assert.Equal(t, league.StatusPostponed, stored[0].Status)
}

func TestSeasonIngester_EmptyReplaceKeepsStoredFinals(t *testing.T) {
	t.Parallel()

	writer := newMemWriter(finalGame(2, 1, 5, 3), finalGame(4, 3, 2, 6))
	sinks := &sinkRecorder{}
	empty := observe()
	empty.Dropped = 6
	empty.Reasons[npb.ReasonParseFailure] = 6
	ing := newIngester(&stubSource{res: empty}, writer, sinks)

	res, err := ing.IngestDate(context.Background(), day, ModeReplace)
	require.NoError(t, err)
	assert.True(t, res.ReplaceRefused)
	assert.Equal(t, ModeMerge, res.Mode)
	assert.Equal(t, 0, writer.replaces)
	assert.Equal(t, 0, writer.merges)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 0, res.FinalCount)

	stored, _ := writer.GetByDate(context.Background(), day)
	require.Len(t, stored, 2)
	for _, g := range stored {
		assert.Equal(t, league.StatusCompleted, g.Status)
	}
	assert.Empty(t, sinks.finals)
}

func TestSeasonIngester_EmptyReplaceOnEmptyDate(t *testing.T) {
	t.Parallel()

	writer := newMemWriter()
	ing := newIngester(&stubSource{res: observe()}, writer, &sinkRecorder{})

	res, err := ing.IngestDate(context.Background(), day, ModeReplace)
	require.NoError(t, err)
	assert.False(t, res.ReplaceRefused)
	assert.Equal(t, 1, writer.replaces)
}

// queueSource hands out one prepared result per call.
type queueSource struct {
	mu      sync.Mutex
	results []npb.ExtractResult
}

func (q *queueSource) IngestDate(context.Context, time.Time) (npb.ExtractResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	res := q.results[0]
	q.results = q.results[1:]
	return res, nil
}

// overlapWriter records how many load-to-write sequences were open at once.
type overlapWriter struct {
	mu        sync.Mutex
	rows      map[reconciliation.PairKey]league.Game
	inside    int
	maxInside int
}

func (w *overlapWriter) GetByDate(context.Context, time.Time) ([]league.Game, error) {
	w.mu.Lock()
	w.inside++
	w.maxInside = max(w.maxInside, w.inside)
	out := make([]league.Game, 0, len(w.rows))
	for _, g := range w.rows {
		out = append(out, g)
	}
	w.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	return out, nil
}

func (w *overlapWriter) write(games []league.Game) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inside--
	for _, g := range games {
		w.rows[reconciliation.PairOf(&g)] = g
	}
}

func (w *overlapWriter) MergeDate(_ context.Context, _ time.Time, games []league.Game, _ string) error {
	w.write(games)
	return nil
}

func (w *overlapWriter) ReplaceDate(_ context.Context, _ time.Time, games []league.Game, _ string) error {
	w.write(games)
	return nil
}

func TestSeasonIngester_SameDateIsSerialized(t *testing.T) {
	t.Parallel()

	writer := &overlapWriter{rows: map[reconciliation.PairKey]league.Game{}}
	src := &queueSource{results: []npb.ExtractResult{
		observe(finalGame(2, 1, 5, 3)),
		observe(finalGame(4, 3, 2, 6)),
	}}
	ing := newIngester(src, writer, &sinkRecorder{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ing.IngestDate(context.Background(), day, ModeMerge)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, writer.maxInside)
	assert.Len(t, writer.rows, 2)
}

func TestSeasonIngester_SourceFailure(t *testing.T) {
	t.Parallel()

	writer := newMemWriter()
	src := &stubSource{err: errors.Mark(errors.New("browser gone"), league.ErrDependencyUnavailable)}
	ing := newIngester(src, writer, &sinkRecorder{})

	_, err := ing.IngestDate(context.Background(), day, ModeMerge)
	require.Error(t, err)
	assert.True(t, errors.Is(err, league.ErrDependencyUnavailable))
	assert.Equal(t, 0, writer.merges)
}

func TestSeasonIngester_ApplyObservations(t *testing.T) {
	t.Parallel()

	writer := newMemWriter()
	ing := newIngester(&stubSource{}, writer, &sinkRecorder{})

	obs := []league.Observation{
		{Game: finalGame(7, 8, 2, 2), Source: "import"},
		{Game: game(9, 10, league.StatusInProgress), Source: "import"},
	}
	res, err := ing.ApplyObservations(context.Background(), day, ModeMerge, obs)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Inserted)
	assert.Equal(t, 1, res.Summary.Rejected)
	assert.Equal(t, 1, res.Stored)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, m)

	m, err = ParseMode("replace")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, m)

	_, err = ParseMode("upsert")
	assert.ErrorIs(t, err, league.ErrInvalidInput)
}
