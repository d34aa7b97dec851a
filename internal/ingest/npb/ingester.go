package npb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// PageCache stores rendered pages of past dates so backfills do not reload them.
type PageCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Ingester fetches one date's score page and extracts its observations.
type Ingester struct {
	fetcher   Fetcher
	extractor *Extractor
	cache     PageCache
	cacheTTL  time.Duration
	source    string
	logger    *logging.Logger
	now       func() time.Time
}

// NewIngester wires a fetcher and extractor. cache may be nil.
func NewIngester(fetcher Fetcher, extractor *Extractor, cache PageCache, cacheTTL time.Duration, logger *logging.Logger) *Ingester {
	return &Ingester{
		fetcher:   fetcher,
		extractor: extractor,
		cache:     cache,
		cacheTTL:  cacheTTL,
		source:    "nikkansports",
		logger:    logger.Named("npb_ingester"),
		now:       time.Now,
	}
}

func pageCacheKey(date time.Time) string {
	return "npb:page:" + league.Day(date).Format("20060102")
}

// IngestDate returns the observations for date. Only fetch failures are errors; a page
// without usable games yields an empty result.
func (i *Ingester) IngestDate(ctx context.Context, date time.Time) (ExtractResult, error) {
	date = league.Day(date)
	key := pageCacheKey(date)

	html, cached := i.cached(ctx, key)
	if !cached {
		var err error
		html, err = i.fetcher.FetchDate(ctx, date)
		if err != nil {
			return ExtractResult{Date: date}, errors.Wrapf(err, "fetch %s", date.Format(league.DateLayout))
		}
	}

	doc, err := ParseHTML(html)
	if err != nil {
		return ExtractResult{Date: date}, err
	}
	res := i.extractor.Extract(ParseBlocks(doc, date, i.source))

	// Today's page still changes; only settled dates are cached.
	if !cached && i.cache != nil && i.cacheTTL > 0 && date.Before(league.Today(i.now())) {
		if err := i.cache.Set(ctx, key, html, i.cacheTTL); err != nil {
			i.logger.Warn("page cache write failed", "key", key, "error", err)
		}
	}

	i.logger.Info("date extracted",
		"date", date.Format(league.DateLayout),
		"cached", cached,
		"accepted", res.Accepted,
		"dropped", res.Dropped,
		"in_progress", res.InProgress,
	)
	return res, nil
}

func (i *Ingester) cached(ctx context.Context, key string) (string, bool) {
	if i.cache == nil {
		return "", false
	}
	html, err := i.cache.Get(ctx, key)
	if err != nil || html == "" {
		return "", false
	}
	return html, true
}
