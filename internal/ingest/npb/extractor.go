package npb

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/pennant/internal/league"
	"github.com/fortuna/pennant/internal/platform/logging"
)

// Block is one candidate game table reduced to trimmed cell text. Rows holds the data
// rows (away first, then home) and Signals any status text found around the table.
type Block struct {
	Header  []string   `json:"header"`
	Rows    [][]string `json:"rows"`
	Signals []string   `json:"signals,omitempty"`
}

// Page is everything extracted from one score page.
type Page struct {
	Date    time.Time `json:"date"`
	Source  string    `json:"source"`
	Signals []string  `json:"signals,omitempty"`
	Blocks  []Block   `json:"blocks"`
}

// Drop reasons reported in ExtractResult.Reasons.
const (
	ReasonNotScoreTable  = "not_score_table"
	ReasonUnresolvedTeam = "unresolved_team"
	ReasonParseFailure   = "parse_failure"
	ReasonInProgress     = "in_progress"
	ReasonPlaceholder    = "zero_zero_placeholder"
)

// ExtractResult is the outcome for one page. Extraction never fails as a whole.
type ExtractResult struct {
	Date         time.Time
	Observations []league.Observation
	Accepted     int
	Dropped      int
	InProgress   int
	Reasons      map[string]int
}

func (r *ExtractResult) drop(reason string) {
	r.Dropped++
	r.Reasons[reason]++
}

// TeamResolver maps a free-text label onto a team.
type TeamResolver interface {
	Resolve(label string) (league.TeamIdentity, bool)
}

// Extractor turns candidate blocks into observations.
type Extractor struct {
	resolver   TeamResolver
	classifier *Classifier
	rules      league.Rules
	logger     *logging.Logger
}

// NewExtractor wires the resolver and rule table into an extractor.
func NewExtractor(resolver TeamResolver, rules league.Rules, logger *logging.Logger) *Extractor {
	return &Extractor{
		resolver:   resolver,
		classifier: NewClassifier(rules),
		rules:      rules,
		logger:     logger.Named("extractor"),
	}
}

// Extract processes every block of the page. Blocks that are not score tables,
// name unknown teams or lack parseable totals are dropped and counted.
func (e *Extractor) Extract(page Page) ExtractResult {
	res := ExtractResult{
		Date:    league.Day(page.Date),
		Reasons: make(map[string]int),
	}
	observed := time.Now().UTC()

	for i, block := range page.Blocks {
		obs, reason := e.extractBlock(page, block)
		if reason != "" {
			if reason == ReasonInProgress {
				res.InProgress++
			}
			res.drop(reason)
			e.logger.Debug("block skipped", "date", res.Date.Format(league.DateLayout), "block", i, "reason", reason)
			continue
		}
		obs.Source = page.Source
		obs.ObservedAt = observed
		res.Observations = append(res.Observations, obs)
		res.Accepted++
	}

	return res
}

type columns struct {
	innings []int
	total   int
	hits    int
	errors  int
}

func (e *Extractor) extractBlock(page Page, block Block) (league.Observation, string) {
	var obs league.Observation

	rows := dataRows(block.Rows)
	if len(rows) < 2 || !e.looksLikeScoreHeader(block.Header) {
		return obs, ReasonNotScoreTable
	}

	away, home, awayRow, homeRow, ok := e.teamRows(rows)
	if !ok {
		return obs, ReasonUnresolvedTeam
	}

	cols := e.mapColumns(block.Header, awayRow, homeRow)

	signals := make([]string, 0, len(block.Signals)+len(page.Signals)+3)
	signals = append(signals, block.Signals...)
	signals = append(signals, strings.Join(block.Header, " "))
	signals = append(signals, strings.Join(awayRow[1:], " "), strings.Join(homeRow[1:], " "))
	signals = append(signals, page.Signals...)
	status := e.classifier.Classify(signals...)
	if status == league.StatusInProgress {
		return obs, ReasonInProgress
	}

	g := league.Game{
		Date:       league.Day(page.Date),
		HomeTeamID: home.ID,
		AwayTeamID: away.ID,
		HomeAbbr:   home.Abbreviation,
		AwayAbbr:   away.Abbreviation,
		League:     home.League,
		Status:     status,
	}
	if away.League == home.League {
		g.League = away.League
	}
	e.describe(&g, block.Signals)

	if status == league.StatusPostponed {
		g.Finalize()
		obs.Game = g
		return obs, ""
	}

	if cols.total < 0 {
		return obs, ReasonParseFailure
	}
	awayTotal := cell(awayRow, cols.total)
	homeTotal := cell(homeRow, cols.total)
	g.AwayScore = nullInt(awayTotal)
	if ContainsWalkOff(homeTotal) {
		g.HomeScore = sumUntilWalkOff(homeRow, cols.innings)
	} else {
		g.HomeScore = nullInt(homeTotal)
	}
	if !g.HasScores() {
		return obs, ReasonParseFailure
	}

	g.InningsAway = innings(awayRow, cols.innings)
	g.InningsHome = innings(homeRow, cols.innings)
	if n := g.FinalInningCount(); n > 0 {
		g.FinalInning = sql.NullInt32{Int32: int32(n), Valid: true}
	}
	if cols.hits >= 0 {
		g.AwayHits, g.HomeHits = nullInt(cell(awayRow, cols.hits)), nullInt(cell(homeRow, cols.hits))
	}
	if cols.errors >= 0 {
		g.AwayErrors, g.HomeErrors = nullInt(cell(awayRow, cols.errors)), nullInt(cell(homeRow, cols.errors))
	}

	if e.isPlaceholder(&g) {
		g.HomeScore, g.AwayScore = sql.NullInt32{}, sql.NullInt32{}
		g.Status = league.StatusScheduled
		g.Finalize()
		obs.Game = g
		return obs, ""
	}

	g.Finalize()
	obs.Game = g
	return obs, ""
}

// isPlaceholder reports a 0-0 "final" with no inning evidence, which some layouts
// print for games that never started.
func (e *Extractor) isPlaceholder(g *league.Game) bool {
	if !e.rules.ZeroZeroNeedsInnings || g.Status != league.StatusCompleted {
		return false
	}
	if g.HomeScore.Int32 != 0 || g.AwayScore.Int32 != 0 {
		return false
	}
	for _, in := range append(append([]sql.NullInt32(nil), g.InningsAway...), g.InningsHome...) {
		if in.Valid {
			return false
		}
	}
	return true
}

func (e *Extractor) looksLikeScoreHeader(header []string) bool {
	text := strings.Join(header, " ")
	return e.rules.HeaderInningPattern.MatchString(text) || e.rules.HeaderTermsPattern.MatchString(text)
}

// teamRows picks the first two rows whose leading cell names a team.
func (e *Extractor) teamRows(rows [][]string) (away, home league.TeamIdentity, awayRow, homeRow []string, ok bool) {
	var found []league.TeamIdentity
	var picked [][]string
	for _, row := range rows {
		t, resolved := e.resolver.Resolve(row[0])
		if !resolved {
			continue
		}
		found = append(found, t)
		picked = append(picked, row)
		if len(found) == 2 {
			break
		}
	}
	if len(found) < 2 || found[0].ID == found[1].ID {
		return away, home, nil, nil, false
	}
	return found[0], found[1], picked[0], picked[1], true
}

// mapColumns aligns header labels with the data rows. A header shorter than the rows
// has lost its team-label cell and is right-aligned, so trailing labels (計 H E) keep
// their columns. total stays -1 when no total label lands on a data column.
func (e *Extractor) mapColumns(header, awayRow, homeRow []string) columns {
	width := len(awayRow)
	if len(homeRow) > width {
		width = len(homeRow)
	}
	cols := columns{total: -1, hits: -1, errors: -1}

	offset := 0
	if len(header) < width {
		offset = width - len(header)
	}
	for i, h := range header {
		col := i + offset
		if col < 1 || col >= width {
			continue
		}
		label := NormalizeDigits(strings.TrimSpace(h))
		switch {
		case matchesLabel(label, e.rules.TotalColumnLabels) && cols.total < 0:
			cols.total = col
		case matchesLabel(label, e.rules.HitsColumnLabels) && cols.hits < 0:
			cols.hits = col
		case matchesLabel(label, e.rules.ErrorsColumnLabels) && cols.errors < 0:
			cols.errors = col
		case isInningLabel(label) && cols.total < 0:
			cols.innings = append(cols.innings, col)
		}
	}

	if cols.total >= 0 && len(cols.innings) == 0 {
		for i := 1; i < cols.total; i++ {
			cols.innings = append(cols.innings, i)
		}
	}
	return cols
}

var (
	venuePattern      = regexp.MustCompile(`[^\s、,。:：()（）]*(球場|ドーム|スタジアム|フィールド|パーク|甲子園|神宮|マリン)`)
	startTimePattern  = regexp.MustCompile(`(?:試合開始|開始|start)\s*[:：]?\s*(\d{1,2}:\d{2})`)
	clockPattern      = regexp.MustCompile(`\b(\d{1,2}:\d{2})\b`)
	durationPattern   = regexp.MustCompile(`試合時間\s*[:：]?\s*(\d+時間\d+分|\d+:\d{2})`)
	attendancePattern = regexp.MustCompile(`(?:観衆|入場者数|入場者|attendance)\s*[:：]?\s*([\d,]+)`)
	weatherPattern    = regexp.MustCompile(`天候\s*[:：]?\s*([^\s、,。]+)`)
)

// describe fills the optional descriptive fields from block signals. Missing values stay absent.
func (e *Extractor) describe(g *league.Game, signals []string) {
	for _, raw := range signals {
		s := NormalizeDigits(raw)
		if !g.Venue.Valid {
			if m := venuePattern.FindString(s); m != "" {
				g.Venue = sql.NullString{String: m, Valid: true}
			}
		}
		if !g.Duration.Valid {
			if m := durationPattern.FindStringSubmatch(s); m != nil {
				g.Duration = sql.NullString{String: m[1], Valid: true}
			}
		}
		if !g.GameTime.Valid {
			if m := startTimePattern.FindStringSubmatch(s); m != nil {
				g.GameTime = sql.NullString{String: m[1], Valid: true}
			} else if !strings.Contains(s, "試合時間") {
				if m := clockPattern.FindStringSubmatch(s); m != nil {
					g.GameTime = sql.NullString{String: m[1], Valid: true}
				}
			}
		}
		if !g.Attendance.Valid {
			if m := attendancePattern.FindStringSubmatch(s); m != nil {
				if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
					g.Attendance = sql.NullInt32{Int32: int32(n), Valid: true}
				}
			}
		}
		if !g.Weather.Valid {
			if m := weatherPattern.FindStringSubmatch(s); m != nil {
				g.Weather = sql.NullString{String: m[1], Valid: true}
			}
		}
	}
}

func dataRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		if len(r) >= 2 && strings.TrimSpace(r[0]) != "" {
			out = append(out, r)
		}
	}
	return out
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// innings parses the inning columns, dropping trailing columns that were never filled
// (extra-inning slots of a nine-inning game).
func innings(row []string, idx []int) []sql.NullInt32 {
	last := -1
	for k, i := range idx {
		if !isBlankCell(cell(row, i)) {
			last = k
		}
	}
	if last < 0 {
		return nil
	}
	out := make([]sql.NullInt32, 0, last+1)
	for _, i := range idx[:last+1] {
		out = append(out, InningCell(cell(row, i)))
	}
	return out
}

// sumUntilWalkOff totals the inning cells that precede the first lone walk-off marker.
func sumUntilWalkOff(row []string, idx []int) sql.NullInt32 {
	total, seen := 0, false
	for _, i := range idx {
		c := cell(row, i)
		if IsWalkOffMarker(c) {
			break
		}
		if n, ok := ParseScore(c); ok {
			total += n
			seen = true
		}
	}
	if !seen {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(total), Valid: true}
}

func isBlankCell(s string) bool {
	t := strings.TrimSpace(NormalizeDigits(s))
	return t == "" || t == "-" || t == "−" || t == "ー" || t == "―"
}

func isInningLabel(label string) bool {
	n, err := strconv.Atoi(label)
	return err == nil && n >= 1 && n <= 20
}

func matchesLabel(label string, labels []string) bool {
	for _, l := range labels {
		if strings.EqualFold(label, l) {
			return true
		}
	}
	return false
}
