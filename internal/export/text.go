// Package export reads and writes canonical records in the line-oriented text
// format consumed by downstream importers:
//
//	# 2025-08-12
//	YOG 3-4 HAN (Central) @ 甲子園
//	# 1|2|YOG|HAN
//	# innings: 1(0-1) 2(1-0) 3(0-0) 4(0-2) 5(0-0) 6(2-0) 7(0-0) 8(0-1) 9(0-X)
//
// Scores are away-home and are written whenever both totals are known, including on
// [SCHEDULED] lines. X marks a half inning that was not played.
package export

import (
	"bufio"
	"database/sql"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/fortuna/pennant/internal/league"
)

const (
	flagDraw      = "[DRAW]"
	flagScheduled = "[SCHEDULED]"
	flagPostponed = "[POSTPONED]"
	notPlayed     = "X"
	inningsPrefix = "# innings:"
)

// Encode writes games grouped by date, oldest first. IN_PROGRESS records have no
// text form and are rejected.
func Encode(w io.Writer, games []league.Game) error {
	sorted := make([]league.Game, len(games))
	copy(sorted, games)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.AwayTeamID != b.AwayTeamID {
			return a.AwayTeamID < b.AwayTeamID
		}
		return a.HomeTeamID < b.HomeTeamID
	})

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var current time.Time
	for i, g := range sorted {
		if g.Status == league.StatusInProgress {
			return errors.Wrapf(league.ErrInvalidInput, "%s %s@%s is in progress", g.DateKey(), g.AwayAbbr, g.HomeAbbr)
		}

		day := league.Day(g.Date)
		if i == 0 || !day.Equal(current) {
			if i > 0 {
				_ = buf.WriteByte('\n')
			}
			current = day
			_, _ = buf.WriteString("# " + day.Format(league.DateLayout) + "\n")
		}
		writeGame(buf, g)
	}

	_, err := w.Write(buf.B)
	return errors.Wrap(err, "write export")
}

func writeGame(buf *bytebufferpool.ByteBuffer, g league.Game) {
	_, _ = buf.WriteString(g.AwayAbbr)
	if g.HasScores() {
		_, _ = buf.WriteString(" " + strconv.Itoa(int(g.AwayScore.Int32)) + "-" + strconv.Itoa(int(g.HomeScore.Int32)) + " ")
	} else {
		_, _ = buf.WriteString(" vs ")
	}
	_, _ = buf.WriteString(g.HomeAbbr + " (" + string(g.League) + ")")

	if g.IsDraw {
		_, _ = buf.WriteString(" " + flagDraw)
	}
	switch g.Status {
	case league.StatusScheduled:
		_, _ = buf.WriteString(" " + flagScheduled)
	case league.StatusPostponed:
		_, _ = buf.WriteString(" " + flagPostponed)
	}
	if g.Venue.Valid && g.Venue.String != "" {
		_, _ = buf.WriteString(" @ " + g.Venue.String)
	}
	_ = buf.WriteByte('\n')

	_, _ = buf.WriteString("# " + strconv.Itoa(g.AwayTeamID) + "|" + strconv.Itoa(g.HomeTeamID) + "|" + g.AwayAbbr + "|" + g.HomeAbbr + "\n")

	n := max(len(g.InningsAway), len(g.InningsHome))
	if n == 0 {
		return
	}
	_, _ = buf.WriteString(inningsPrefix)
	for i := 0; i < n; i++ {
		_, _ = buf.WriteString(" " + strconv.Itoa(i+1) + "(" + inningToken(g.InningsAway, i) + "-" + inningToken(g.InningsHome, i) + ")")
	}
	_ = buf.WriteByte('\n')
}

func inningToken(in []sql.NullInt32, i int) string {
	if i >= len(in) || !in[i].Valid {
		return notPlayed
	}
	return strconv.Itoa(int(in[i].Int32))
}

var (
	dateLine   = regexp.MustCompile(`^#\s*(\d{4}-\d{2}-\d{2})\s*$`)
	gameLine   = regexp.MustCompile(`^(\S+)\s+(?:(\d+)-(\d+)|vs)\s+(\S+)\s+\((\w+)\)(.*)$`)
	metaLine   = regexp.MustCompile(`^#\s*(\d+)\|(\d+)\|([A-Za-z]*)\|([A-Za-z]*)\s*$`)
	inningItem = regexp.MustCompile(`(\d+)\((\d+|X)-(\d+|X)\)`)
)

// Decode parses text produced by Encode. Team identities come from the id line when
// present, else from the abbreviations. A 0-0 completed line without [DRAW] is read
// as a scheduled placeholder.
func Decode(r io.Reader, ref *league.Reference) ([]league.Game, error) {
	var (
		games   []league.Game
		date    time.Time
		hasDate bool
		lineNo  int
	)
	pending := -1 // index of the last game line, open for meta and innings lines

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if m := dateLine.FindStringSubmatch(line); m != nil {
			d, err := league.ParseDate(m[1])
			if err != nil {
				return nil, errors.Wrapf(league.ErrParseFailure, "line %d: %v", lineNo, err)
			}
			date, hasDate, pending = d, true, -1
			continue
		}

		if strings.HasPrefix(line, inningsPrefix) {
			if pending < 0 {
				return nil, errors.Wrapf(league.ErrParseFailure, "line %d: innings without a game", lineNo)
			}
			if err := applyInnings(&games[pending], line[len(inningsPrefix):]); err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			continue
		}

		if m := metaLine.FindStringSubmatch(line); m != nil {
			if pending < 0 {
				return nil, errors.Wrapf(league.ErrParseFailure, "line %d: id line without a game", lineNo)
			}
			if err := applyMeta(&games[pending], m, ref); err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		if !hasDate {
			return nil, errors.Wrapf(league.ErrParseFailure, "line %d: game before date header", lineNo)
		}
		g, err := parseGame(line, date, ref)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		games = append(games, g)
		pending = len(games) - 1
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read import")
	}

	for i := range games {
		finish(&games[i])
	}
	return games, nil
}

func parseGame(line string, date time.Time, ref *league.Reference) (league.Game, error) {
	m := gameLine.FindStringSubmatch(line)
	if m == nil {
		return league.Game{}, errors.Wrapf(league.ErrParseFailure, "unrecognised game line %q", line)
	}

	away, ok := ref.ByAbbreviation(m[1])
	if !ok {
		return league.Game{}, errors.Wrapf(league.ErrUnresolvedTeam, "%q", m[1])
	}
	home, ok := ref.ByAbbreviation(m[4])
	if !ok {
		return league.Game{}, errors.Wrapf(league.ErrUnresolvedTeam, "%q", m[4])
	}
	lg, ok := league.ParseLeague(m[5])
	if !ok {
		return league.Game{}, errors.Wrapf(league.ErrParseFailure, "league %q", m[5])
	}

	g := league.Game{
		Date:       date,
		HomeTeamID: home.ID,
		AwayTeamID: away.ID,
		HomeAbbr:   home.Abbreviation,
		AwayAbbr:   away.Abbreviation,
		League:     lg,
		Status:     league.StatusCompleted,
	}

	rest := m[6]
	if i := strings.Index(rest, " @ "); i >= 0 {
		if venue := strings.TrimSpace(rest[i+3:]); venue != "" {
			g.Venue = sql.NullString{String: venue, Valid: true}
		}
		rest = rest[:i]
	}
	draw := strings.Contains(rest, flagDraw)
	switch {
	case strings.Contains(rest, flagPostponed):
		g.Status = league.StatusPostponed
	case strings.Contains(rest, flagScheduled):
		g.Status = league.StatusScheduled
	}

	switch {
	case m[2] != "" && g.Status != league.StatusPostponed:
		a, _ := strconv.Atoi(m[2])
		h, _ := strconv.Atoi(m[3])
		g.AwayScore = sql.NullInt32{Int32: int32(a), Valid: true}
		g.HomeScore = sql.NullInt32{Int32: int32(h), Valid: true}
		if g.Status == league.StatusCompleted && a == 0 && h == 0 && !draw {
			g.Status = league.StatusScheduled
			g.AwayScore, g.HomeScore = sql.NullInt32{}, sql.NullInt32{}
		}
	case g.Status == league.StatusCompleted:
		g.Status = league.StatusScheduled
	}
	return g, nil
}

func applyMeta(g *league.Game, m []string, ref *league.Reference) error {
	awayID, _ := strconv.Atoi(m[1])
	homeID, _ := strconv.Atoi(m[2])
	away, ok := ref.ByID(awayID)
	if !ok {
		return errors.Wrapf(league.ErrUnresolvedTeam, "team id %d", awayID)
	}
	home, ok := ref.ByID(homeID)
	if !ok {
		return errors.Wrapf(league.ErrUnresolvedTeam, "team id %d", homeID)
	}
	g.AwayTeamID, g.AwayAbbr = away.ID, away.Abbreviation
	g.HomeTeamID, g.HomeAbbr = home.ID, home.Abbreviation
	return nil
}

func applyInnings(g *league.Game, text string) error {
	items := inningItem.FindAllStringSubmatch(text, -1)
	if len(items) == 0 {
		return errors.Wrapf(league.ErrParseFailure, "innings %q", strings.TrimSpace(text))
	}

	away := make([]sql.NullInt32, len(items))
	home := make([]sql.NullInt32, len(items))
	for i, it := range items {
		if n, _ := strconv.Atoi(it[1]); n != i+1 {
			return errors.Wrapf(league.ErrParseFailure, "inning %s out of order", it[1])
		}
		away[i] = token(it[2])
		home[i] = token(it[3])
	}
	g.InningsAway = trimTrailing(away)
	g.InningsHome = trimTrailing(home)
	return nil
}

func token(s string) sql.NullInt32 {
	if s == notPlayed {
		return sql.NullInt32{}
	}
	n, _ := strconv.Atoi(s)
	return sql.NullInt32{Int32: int32(n), Valid: true}
}

// trimTrailing drops padding added for the longer side. A lone walk-off X in the
// last slot is kept so the half inning stays recorded as not played.
func trimTrailing(in []sql.NullInt32) []sql.NullInt32 {
	end := len(in)
	for end > 0 && !in[end-1].Valid {
		end--
	}
	if end == 0 {
		return nil
	}
	if end == len(in)-1 {
		end++
	}
	return in[:end]
}

func finish(g *league.Game) {
	if n := g.FinalInningCount(); n > 0 {
		g.FinalInning = sql.NullInt32{Int32: int32(n), Valid: true}
	}
	g.Finalize()
}
