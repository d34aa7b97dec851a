package npb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

type stubFetcher struct {
	html  string
	err   error
	calls int
}

func (f *stubFetcher) FetchDate(context.Context, time.Time) (string, error) {
	f.calls++
	return f.html, f.err
}

type mapCache map[string]string

func (m mapCache) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (m mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m[key] = value.(string)
	return nil
}

func TestIngester_CachesPastDates(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{html: scorePageHTML}
	cache := mapCache{}
	ing := NewIngester(fetcher, newExtractor(t), cache, time.Hour, logging.NewNop())
	ing.now = func() time.Time { return pageDate.AddDate(0, 0, 3) }

	for range 2 {
		res, err := ing.IngestDate(context.Background(), pageDate)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Accepted)
	}
	assert.Equal(t, 1, fetcher.calls)
	assert.Contains(t, cache, "npb:page:20250812")
}

func TestIngester_TodayIsNotCached(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{html: scorePageHTML}
	cache := mapCache{}
	ing := NewIngester(fetcher, newExtractor(t), cache, time.Hour, logging.NewNop())
	ing.now = func() time.Time { return pageDate.Add(2 * time.Hour) }

	_, err := ing.IngestDate(context.Background(), pageDate)
	require.NoError(t, err)
	assert.Empty(t, cache)
}

func TestIngester_FetchFailure(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: league.ErrDependencyUnavailable}
	ing := NewIngester(fetcher, newExtractor(t), nil, 0, logging.NewNop())

	_, err := ing.IngestDate(context.Background(), pageDate)
	require.Error(t, err)
	assert.ErrorIs(t, err, league.ErrDependencyUnavailable)
}

func TestScoreURL(t *testing.T) {
	t.Parallel()

	got := ScoreURL(DefaultURLPattern, time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, "https://www.nikkansports.com/baseball/professional/score/2024/pf-score-20240402.html", got)
}
