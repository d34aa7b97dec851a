package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/fortuna/pennant/internal/app"
	"github.com/fortuna/pennant/internal/backfill"
	"github.com/fortuna/pennant/internal/config"
	"github.com/fortuna/pennant/internal/export"
	"github.com/fortuna/pennant/internal/ingest"
	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
	"github.com/fortuna/pennant/internal/store"
)

const importSource = "import"

var (
	flagVerbose bool

	flagStart   string
	flagEnd     string
	flagReplace bool
	flagDryRun  bool
	flagWorkers int

	flagFrom   string
	flagTo     string
	flagOutput string
	flagInput  string

	flagSeason    int
	flagLeague    string
	flagRecompute bool
	flagJSON      bool

	flagSteps int
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pennantctl",
		Short:         "Operate the pennant NPB score store",
		Long:          "Backfill score pages, move canonical records in and out as text, inspect standings and run migrations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(newBackfillCmd(), newExportCmd(), newImportCmd(), newStandingsCmd(), newMigrateCmd())
	return cmd
}

func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest every date of a range and recompute standings",
		RunE:  runBackfill,
	}
	cmd.Flags().StringVar(&flagStart, "start", "", "First date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&flagEnd, "end", "", "Last date, YYYY-MM-DD (default: --start)")
	cmd.Flags().BoolVar(&flagReplace, "replace", false, "Rebuild each date from the fresh page instead of merging")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Validate the range without fetching")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "Parallel dates (default: WORKER_COUNT)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write canonical records as text",
		RunE:  runExport,
	}
	cmd.Flags().StringVar(&flagFrom, "from", "", "First date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&flagTo, "to", "", "Last date, YYYY-MM-DD (default: --from)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "-", "Output file, - for stdout")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Reconcile records from an exported text file",
		RunE:  runImport,
	}
	cmd.Flags().StringVarP(&flagInput, "input", "i", "-", "Input file, - for stdin")
	cmd.Flags().BoolVar(&flagReplace, "replace", false, "Make the file the complete record set of each date it covers")
	return cmd
}

func newStandingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Print league tables",
		RunE:  runStandings,
	}
	cmd.Flags().IntVar(&flagSeason, "season", 0, "Season year for --recompute (default: SEASON_YEAR)")
	cmd.Flags().StringVar(&flagLeague, "league", "", "Central or Pacific (default: both)")
	cmd.Flags().BoolVar(&flagRecompute, "recompute", false, "Rebuild from stored games before printing")
	cmd.Flags().BoolVar(&flagJSON, "json", false, "Print JSON")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return store.Migrate(cfg.DatabaseURL, logger)
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return store.MigrateDown(cfg.DatabaseURL, flagSteps, logger)
		},
	}
	down.Flags().IntVar(&flagSteps, "steps", 1, "Number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			v, dirty, ok, err := store.MigrationVersion(cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%v)\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func setup() (config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	level := cfg.LogLevel
	if flagVerbose {
		level = logging.LevelDebug
	}
	logger := logging.NewConsole(level)
	logging.SetDefault(logger)
	return cfg, logger, nil
}

func openApp(cmd *cobra.Command) (context.Context, context.CancelFunc, *app.App, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, a, nil
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	start, err := league.ParseDate(flagStart)
	if err != nil {
		return err
	}
	end := start
	if flagEnd != "" {
		if end, err = league.ParseDate(flagEnd); err != nil {
			return err
		}
	}
	mode := ingest.ModeMerge
	if flagReplace {
		mode = ingest.ModeReplace
	}

	spec, err := backfill.Request{StartDate: start, EndDate: end, Mode: string(mode)}.Validate()
	if err != nil {
		return err
	}
	spec.DryRun = flagDryRun

	ctx, cancel, a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	workers := a.Config.WorkerCount
	if flagWorkers > 0 {
		workers = flagWorkers
	}
	runner := backfill.NewRunner(a.Ingester, a.Standings, workers, a.Logger)

	p, err := runner.Run(ctx, spec, &consoleReporter{out: cmd.OutOrStdout()})
	fmt.Fprintf(cmd.OutOrStdout(), "dates %d/%d, games accepted %d, blocks dropped %d\n",
		p.Current, p.Total, p.GamesAccepted, p.BlocksDropped)
	return err
}

func runExport(cmd *cobra.Command, _ []string) error {
	from, err := league.ParseDate(flagFrom)
	if err != nil {
		return err
	}
	to := from
	if flagTo != "" {
		if to, err = league.ParseDate(flagTo); err != nil {
			return err
		}
	}

	ctx, cancel, a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	out := cmd.OutOrStdout()
	if flagOutput != "-" {
		f, err := os.Create(flagOutput)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		out = f
	}
	return a.Games.Export(ctx, out, from, to)
}

func runImport(cmd *cobra.Command, _ []string) error {
	var in io.Reader = cmd.InOrStdin()
	if flagInput != "-" {
		f, err := os.Open(flagInput)
		if err != nil {
			return errors.Wrap(err, "open input")
		}
		defer f.Close()
		in = f
	}

	games, err := export.Decode(in, league.DefaultReference())
	if err != nil {
		return err
	}

	ctx, cancel, a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	mode := ingest.ModeMerge
	if flagReplace {
		mode = ingest.ModeReplace
	}

	byDate := groupObservations(games, time.Now())
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	seasons := make(map[int]struct{})
	for _, d := range dates {
		date, _ := league.ParseDate(d)
		res, err := a.Ingester.ApplyObservations(ctx, date, mode, byDate[d])
		if err != nil {
			return err
		}
		seasons[date.Year()] = struct{}{}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  inserted %d  replaced %d  kept %d  rejected %d  stored %d\n",
			d, res.Summary.Inserted, res.Summary.Replaced, res.Summary.Kept, res.Summary.Rejected, res.Stored)
	}

	for year := range seasons {
		if _, err := a.Standings.Recompute(ctx, year); err != nil {
			return errors.Wrapf(err, "recompute %d standings", year)
		}
	}
	return nil
}

func groupObservations(games []league.Game, now time.Time) map[string][]league.Observation {
	out := make(map[string][]league.Observation)
	for _, g := range games {
		key := g.DateKey()
		out[key] = append(out[key], league.Observation{Game: g, Source: importSource, ObservedAt: now})
	}
	return out
}

func runStandings(cmd *cobra.Command, _ []string) error {
	leagues := league.Leagues
	if flagLeague != "" {
		lg, ok := league.ParseLeague(flagLeague)
		if !ok {
			return errors.Wrapf(league.ErrInvalidInput, "league %q", flagLeague)
		}
		leagues = []league.League{lg}
	}

	ctx, cancel, a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	if flagRecompute {
		season := flagSeason
		if season == 0 {
			season = a.Config.SeasonYear
		}
		if _, err := a.Standings.Recompute(ctx, season); err != nil {
			return err
		}
	}

	tables := make(map[league.League][]league.StandingEntry, len(leagues))
	for _, lg := range leagues {
		entries, err := a.Standings.Get(ctx, lg)
		if err != nil {
			return err
		}
		tables[lg] = entries
	}

	if flagJSON {
		return sonic.ConfigDefault.NewEncoder(cmd.OutOrStdout()).Encode(tables)
	}
	for _, lg := range leagues {
		printTable(cmd.OutOrStdout(), lg, tables[lg])
	}
	return nil
}

func printTable(w io.Writer, lg league.League, entries []league.StandingEntry) {
	fmt.Fprintf(w, "%s League\n", lg)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tTeam\tG\tW\tL\tD\tPct\tGB\tL10\tStrk\tMagic\tElim\t")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%.3f\t%s\t%d-%d-%d\t%s\t%s\t%s\t\n",
			e.Rank, e.Abbreviation, e.GamesPlayed, e.Wins, e.Losses, e.Draws, e.Pct,
			gamesBehind(e), e.Last10Wins, e.Last10Losses, e.Last10Draws, e.Streak,
			optional(e.MagicNumber), optional(e.EliminationNumber))
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
}

func gamesBehind(e league.StandingEntry) string {
	if e.Rank == 1 || e.GamesBehind == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", e.GamesBehind)
}

func optional(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}

type consoleReporter struct {
	out io.Writer
}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec, total int) {
	fmt.Fprintf(c.out, "backfill %s..%s (%s, %d dates, dry_run=%v)\n",
		spec.Start.Format(league.DateLayout), spec.End.Format(league.DateLayout), spec.Mode, total, spec.DryRun)
}

func (c *consoleReporter) OnDateDone(res ingest.DateResult, p backfill.Progress) {
	fmt.Fprintf(c.out, "[%d/%d] %s  accepted %d  dropped %d  stored %d  final %d\n",
		p.Current, p.Total, res.Date.Format(league.DateLayout), res.Accepted, res.Dropped, res.Stored, res.FinalCount)
}

func (c *consoleReporter) OnDateFailed(date time.Time, err error, p backfill.Progress) {
	fmt.Fprintf(c.out, "[%d/%d] %s  failed: %v\n", p.Current, p.Total, date.Format(league.DateLayout), err)
}

func (c *consoleReporter) OnJobComplete(backfill.Progress) {
	fmt.Fprintln(c.out, "backfill complete")
}

func (c *consoleReporter) OnJobError(err error) {
	fmt.Fprintf(c.out, "backfill error: %v\n", err)
}
