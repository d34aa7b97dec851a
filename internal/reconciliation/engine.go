package reconciliation

import (
	"sort"
	"sync"
	"time"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// Engine holds the canonical record set and merges observations into it.
// Records are sharded by date; each shard serializes its own updates, so merges for
// different dates proceed concurrently while updates to one key never interleave.
type Engine struct {
	ref    *league.Reference
	logger *logging.Logger

	mu     sync.RWMutex
	shards map[string]*dateShard

	metricsMu sync.Mutex
	metrics   Metrics
}

type dateShard struct {
	mu      sync.Mutex
	records map[PairKey]league.Game
}

// Outcome describes what a merge did with an observation.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeReplaced Outcome = "replaced"
	OutcomeKept     Outcome = "kept"
	OutcomeRejected Outcome = "rejected"
)

// Match says how an observation was paired with an existing record.
type Match string

const (
	MatchNone      Match = "none"
	MatchStrict    Match = "strict"
	MatchSymmetric Match = "symmetric"
	MatchPair      Match = "pair"
)

// Metrics tracks reconciliation statistics.
type Metrics struct {
	TotalReconciliations int       `json:"total_reconciliations"`
	Inserted             int       `json:"inserted"`
	Replaced             int       `json:"replaced"`
	Kept                 int       `json:"kept"`
	Rejected             int       `json:"rejected"`
	SymmetricMatches     int       `json:"symmetric_matches"`
	OrientationConflicts int       `json:"orientation_conflicts"`
	InvalidExisting      int       `json:"invalid_existing"`
	DatesReplaced        int       `json:"dates_replaced"`
	LastReconciliation   time.Time `json:"last_reconciliation"`
}

// Summary counts the outcomes of a batch merge.
type Summary struct {
	Inserted int `json:"inserted"`
	Replaced int `json:"replaced"`
	Kept     int `json:"kept"`
	Rejected int `json:"rejected"`
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeInserted:
		s.Inserted++
	case OutcomeReplaced:
		s.Replaced++
	case OutcomeKept:
		s.Kept++
	case OutcomeRejected:
		s.Rejected++
	}
}

// Changed reports whether any canonical record was written.
func (s Summary) Changed() bool {
	return s.Inserted+s.Replaced > 0
}

// NewEngine creates an empty engine validating records against ref.
func NewEngine(ref *league.Reference, logger *logging.Logger) *Engine {
	return &Engine{
		ref:    ref,
		logger: logger.Named("reconciliation"),
		shards: make(map[string]*dateShard),
	}
}

func (e *Engine) shard(date string) *dateShard {
	e.mu.RLock()
	s, ok := e.shards[date]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok = e.shards[date]; !ok {
		s = &dateShard{records: make(map[PairKey]league.Game)}
		e.shards[date] = s
	}
	return s
}

// Merge applies one observation: insert when the game is unknown, otherwise replace
// the existing record only when the observation is strictly better.
func (e *Engine) Merge(obs league.Observation) Outcome {
	g := obs.Game.Clone()
	g.Finalize()
	s := e.shard(g.DateKey())

	s.mu.Lock()
	outcome, match := e.mergeLocked(s, g)
	s.mu.Unlock()

	e.record(outcome, match)
	e.logger.Debug("observation merged",
		"date", g.DateKey(), "home", g.HomeAbbr, "away", g.AwayAbbr,
		"status", g.Status, "source", obs.Source, "outcome", outcome, "match", match)
	return outcome
}

// MergeAll merges a batch in order.
func (e *Engine) MergeAll(observations []league.Observation) Summary {
	var sum Summary
	for _, obs := range observations {
		sum.add(e.Merge(obs))
	}
	return sum
}

// ReplaceDate discards every canonical record of date and rebuilds the date from
// observations alone. Observations for other dates are ignored.
func (e *Engine) ReplaceDate(date time.Time, observations []league.Observation) Summary {
	key := league.Day(date).Format(league.DateLayout)
	s := e.shard(key)

	var sum Summary
	s.mu.Lock()
	s.records = make(map[PairKey]league.Game)
	for _, obs := range observations {
		g := obs.Game.Clone()
		g.Finalize()
		if g.DateKey() != key {
			continue
		}
		outcome, match := e.mergeLocked(s, g)
		e.record(outcome, match)
		sum.add(outcome)
	}
	s.mu.Unlock()

	e.metricsMu.Lock()
	e.metrics.DatesReplaced++
	e.metricsMu.Unlock()

	e.logger.Info("date replaced", "date", key, "inserted", sum.Inserted, "kept", sum.Kept, "rejected", sum.Rejected)
	return sum
}

// Seed loads previously stored canonical records. Stored records skip structural
// validation so that invalid rows can later lose to valid observations.
func (e *Engine) Seed(games []league.Game) {
	for _, g := range games {
		g = g.Clone()
		g.Finalize()
		s := e.shard(g.DateKey())

		s.mu.Lock()
		pk := PairOf(&g)
		if cur, ok := s.records[pk]; !ok || IsBetter(e.ref, &g, &cur) {
			s.records[pk] = g
		}
		s.mu.Unlock()
	}
}

func (e *Engine) mergeLocked(s *dateShard, g league.Game) (Outcome, Match) {
	if g.Status == league.StatusInProgress || g.Validate() != nil {
		return OutcomeRejected, MatchNone
	}

	pk := PairOf(&g)
	cur, ok := s.records[pk]
	if !ok {
		s.records[pk] = g
		return OutcomeInserted, MatchNone
	}

	match := MatchPair
	switch {
	case StrictKey(&cur) == StrictKey(&g):
		match = MatchStrict
	case SymmetricKey(&cur) == SymmetricKey(&g):
		match = MatchSymmetric
	}

	if !IsBetter(e.ref, &g, &cur) {
		return OutcomeKept, match
	}
	if !structurallyValid(e.ref, &cur) {
		e.metricsMu.Lock()
		e.metrics.InvalidExisting++
		e.metricsMu.Unlock()
	}
	s.records[pk] = g
	return OutcomeReplaced, match
}

func (e *Engine) record(o Outcome, m Match) {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()

	e.metrics.TotalReconciliations++
	e.metrics.LastReconciliation = time.Now()
	switch o {
	case OutcomeInserted:
		e.metrics.Inserted++
	case OutcomeReplaced:
		e.metrics.Replaced++
	case OutcomeKept:
		e.metrics.Kept++
	case OutcomeRejected:
		e.metrics.Rejected++
	}
	switch m {
	case MatchSymmetric:
		e.metrics.SymmetricMatches++
	case MatchPair:
		e.metrics.OrientationConflicts++
	}
}

// Date returns copies of the canonical records of one date ordered by home team.
func (e *Engine) Date(date time.Time) []league.Game {
	key := league.Day(date).Format(league.DateLayout)
	e.mu.RLock()
	s, ok := e.shards[key]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	out := make([]league.Game, 0, len(s.records))
	for _, g := range s.records {
		out = append(out, g.Clone())
	}
	s.mu.Unlock()

	sortGames(out)
	return out
}

// Snapshot returns copies of every canonical record ordered by date, then home team.
func (e *Engine) Snapshot() []league.Game {
	e.mu.RLock()
	shards := make([]*dateShard, 0, len(e.shards))
	for _, s := range e.shards {
		shards = append(shards, s)
	}
	e.mu.RUnlock()

	var out []league.Game
	for _, s := range shards {
		s.mu.Lock()
		for _, g := range s.records {
			out = append(out, g.Clone())
		}
		s.mu.Unlock()
	}

	sortGames(out)
	return out
}

// GetMetrics returns a copy of the current metrics.
func (e *Engine) GetMetrics() Metrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	return e.metrics
}

// ResetMetrics clears all metrics.
func (e *Engine) ResetMetrics() {
	e.metricsMu.Lock()
	e.metrics = Metrics{LastReconciliation: time.Now()}
	e.metricsMu.Unlock()
}

func sortGames(games []league.Game) {
	sort.Slice(games, func(i, j int) bool {
		if !games[i].Date.Equal(games[j].Date) {
			return games[i].Date.Before(games[j].Date)
		}
		if games[i].HomeTeamID != games[j].HomeTeamID {
			return games[i].HomeTeamID < games[j].HomeTeamID
		}
		return games[i].AwayTeamID < games[j].AwayTeamID
	})
}
