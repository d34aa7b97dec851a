package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/api/rest"
	"github.com/fortuna/pennant/internal/api/websocket"
	"github.com/fortuna/pennant/internal/app"
	"github.com/fortuna/pennant/internal/backfill"
	"github.com/fortuna/pennant/internal/config"
	"github.com/fortuna/pennant/internal/platform/logging"
	"github.com/fortuna/pennant/internal/scheduler"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSON(cfg.LogLevel).With("service", cfg.ServiceName, "version", serviceVersion)
	logging.SetDefault(logger)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("pennant stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "start application")
	}
	defer a.Close()
	logger.Info("connected", "season", cfg.SeasonYear, "archive", a.Archive != nil)

	backfillSvc := backfill.NewService(a.JobRepo, a.Runner(), logger)
	backfillSvc.Start()

	var sched *scheduler.Orchestrator
	if cfg.SchedulerEnabled {
		sched = scheduler.NewOrchestrator(a.Ingester, a.Standings, a.Games, &scheduler.Config{
			PollInterval:         cfg.PollInterval,
			DailyIngestionHour:   cfg.DailyIngestHour,
			StaleAfterDays:       cfg.StaleAfterDays,
			EnableTodayPolling:   true,
			EnableDailyIngestion: true,
			MaxRetries:           3,
			RetryDelay:           5 * time.Second,
		}, logger)
		go sched.Start(ctx)
		logger.Info("scheduler started", "poll_interval", cfg.PollInterval, "daily_hour_jst", cfg.DailyIngestHour)
	}

	handler := rest.NewHandler(rest.Dependencies{
		Games:          a.Games,
		Standings:      a.Standings,
		Metrics:        a.Engine,
		Reference:      a.Reference,
		Season:         cfg.SeasonYear,
		StaleAfterDays: cfg.StaleAfterDays,
		Checks: map[string]rest.HealthChecker{
			"postgres": a.DB,
			"redis":    a.Cache,
		},
		Logger: logger,
	})

	var schedControl rest.SchedulerControl
	if sched != nil {
		schedControl = sched
	}

	server := rest.NewServer(rest.Options{
		Port:         cfg.Port,
		CORSOrigins:  cfg.CORSOrigins,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ServiceName:  cfg.ServiceName,
	}, handler, rest.NewBackfillHandler(backfillSvc, schedControl), logger)

	ws := websocket.NewServer(a.Publisher, cfg.CORSOrigins, logger)
	go ws.Run(ctx)
	server.Router().Handle("/ws", ws)
	server.Router().HandleFunc("/ws/health", ws.HandleHealth).Methods("GET")

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "port", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := backfillSvc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("backfill shutdown", "error", err)
	}

	logger.Info("pennant stopped")
	return nil
}
