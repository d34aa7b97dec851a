// Package app assembles the pennant components from configuration. Both the
// server and the CLI build on it.
package app

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/backfill"
	"github.com/fortuna/pennant/internal/cache"
	"github.com/fortuna/pennant/internal/config"
	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/ingest/npb"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
	"github.com/fortuna/pennant/internal/publisher"
	"github.com/fortuna/pennant/internal/reconciliation"
	"github.com/fortuna/pennant/internal/service"
	"github.com/fortuna/pennant/internal/store"
	"github.com/fortuna/pennant/internal/store/archive"
	"github.com/fortuna/pennant/internal/store/repository"
)

// Source tags rows written by the score page pipeline.
const Source = "nikkansports"

// App holds the wired components.
type App struct {
	Config    config.Config
	Logger    *logging.Logger
	Reference *league.Reference

	DB        *store.Database
	Cache     *cache.RedisCache
	Publisher *publisher.RedisStreamPublisher
	Archive   *archive.Archive

	GameRepo     *repository.GameRepository
	StandingRepo *repository.StandingRepository
	JobRepo      *backfill.Repository

	Browser   *npb.Client
	Engine    *reconciliation.Engine
	Ingester  *ingest.SeasonIngester
	Games     *service.GameService
	Standings *service.StandingsService
}

// New connects to Postgres and Redis, applies migrations when enabled, syncs the
// team table and wires the pipeline. Close releases everything.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Reference: league.DefaultReference()}

	if cfg.MigrationsEnabled {
		if err := store.Migrate(cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}

	db, err := store.NewDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, errors.Mark(err, league.ErrDependencyUnavailable)
	}
	a.DB = db

	if err := repository.NewTeamRepository(db).SyncReference(ctx, a.Reference); err != nil {
		a.Close()
		return nil, err
	}

	redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = redisCache
	a.Publisher = publisher.NewRedisStreamPublisher(redisCache.Client())

	if cfg.DynamoTable != "" {
		a.Archive, err = archive.NewFromEnv(ctx, cfg.AWSRegion, cfg.DynamoTable)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.GameRepo = repository.NewGameRepository(db)
	a.StandingRepo = repository.NewStandingRepository(db)
	a.JobRepo = backfill.NewRepository(db)

	if err := a.wirePipeline(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wirePipeline() error {
	rules := a.Config.Rules()

	resolver, err := reconciliation.NewResolver(a.Reference)
	if err != nil {
		return err
	}

	a.Browser = npb.NewClient(a.Config.FetchOptions(), a.Logger)
	extractor := npb.NewExtractor(resolver, rules, a.Logger)
	pages := npb.NewIngester(a.Browser, extractor, a.Cache, a.Config.PageCacheTTL, a.Logger)

	a.Engine = reconciliation.NewEngine(a.Reference, a.Logger)
	a.Games = service.NewGameService(a.GameRepo, a.Reference, a.Cache, a.Logger)
	a.Standings = service.NewStandingsService(a.GameRepo, a.StandingRepo, a.Cache, a.Publisher, a.Reference, rules, a.Logger)

	opts := []ingest.Option{
		ingest.WithPublisher(a.Publisher),
		ingest.WithInvalidator(a.Games),
	}
	if a.Archive != nil {
		opts = append(opts, ingest.WithArchive(a.Archive))
	}
	a.Ingester = ingest.NewSeasonIngester(pages, a.Engine, a.GameRepo, Source, a.Logger, opts...)
	return nil
}

// Runner builds a backfill runner over the pipeline.
func (a *App) Runner() *backfill.Runner {
	return backfill.NewRunner(a.Ingester, a.Standings, a.Config.WorkerCount, a.Logger)
}

// Close shuts down the browser and closes the connections.
func (a *App) Close() {
	if a.Browser != nil {
		a.Browser.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("close redis", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close database", "error", err)
		}
	}
}
