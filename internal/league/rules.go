package league

import "regexp"

// Rules is the single versioned table of extraction and pennant-race heuristics.
// Layout variants are expressed as data here rather than as separate code paths.
type Rules struct {
	Version string

	// Status keywords, matched case-insensitively against normalized signal text.
	PostponedKeywords  []string
	CompletedKeywords  []string
	InProgressKeywords []string
	InProgressPatterns []*regexp.Regexp

	// A block header must match at least one of these to be a score table.
	HeaderInningPattern *regexp.Regexp
	HeaderTermsPattern  *regexp.Regexp

	TotalColumnLabels  []string
	HitsColumnLabels   []string
	ErrorsColumnLabels []string

	// A 0-0 final is only a draw when at least one inning cell was parsed.
	ZeroZeroNeedsInnings bool

	TotalGamesInSeason int
	CloseThreshold     int
	DangerThreshold    int
}

// DefaultRules returns the current rule table.
func DefaultRules() Rules {
	return Rules{
		Version: "2025.1",
		PostponedKeywords: []string{
			"中止", "延期", "ノーゲーム", "サスペンデッド",
			"postponed", "cancelled", "canceled", "suspended", "no game",
		},
		CompletedKeywords: []string{
			"試合終了", "終了", "引き分け", "引分",
			"game over", "final", "draw",
		},
		InProgressKeywords: []string{"試合中", "進行中"},
		InProgressPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(延長)?\s*\d{1,2}\s*回\s*[表裏]`),
			regexp.MustCompile(`(?i)\b(top|bottom|bot|middle|mid|end)\s+(of\s+the\s+)?\d{1,2}(st|nd|rd|th)\b`),
			regexp.MustCompile(`(?i)\bextra\s+\d{1,2}(st|nd|rd|th)\b`),
		},
		HeaderInningPattern:  regexp.MustCompile(`[１２３４５６７８９1-9]`),
		HeaderTermsPattern:   regexp.MustCompile(`[回合計RHE投手]`),
		TotalColumnLabels:    []string{"計", "合計", "R", "得点"},
		HitsColumnLabels:     []string{"H", "安", "安打"},
		ErrorsColumnLabels:   []string{"E", "失", "失策"},
		ZeroZeroNeedsInnings: true,
		TotalGamesInSeason:   143,
		CloseThreshold:       5,
		DangerThreshold:      3,
	}
}
