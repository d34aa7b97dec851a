package league

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// League is one of the two NPB leagues.
type League string

const (
	Central League = "Central"
	Pacific League = "Pacific"
)

// Leagues lists every league in display order.
var Leagues = []League{Central, Pacific}

// Valid reports whether l is a known league.
func (l League) Valid() bool {
	return l == Central || l == Pacific
}

// ParseLeague accepts the canonical name in any case, plus the Japanese names.
func ParseLeague(s string) (League, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "central", "セ", "セ・リーグ", "セリーグ", "cl":
		return Central, true
	case "pacific", "パ", "パ・リーグ", "パリーグ", "pl":
		return Pacific, true
	}
	return "", false
}

// TeamIdentity is immutable reference data for one franchise.
type TeamIdentity struct {
	ID           int      `json:"team_id"`
	Abbreviation string   `json:"abbreviation"`
	Name         string   `json:"name"`
	EnglishName  string   `json:"english_name"`
	League       League   `json:"league"`
	Labels       []string `json:"labels,omitempty"`
}

// Reference is the validated team table. It is never mutated after construction.
type Reference struct {
	teams  []TeamIdentity
	byID   map[int]TeamIdentity
	byAbbr map[string]TeamIdentity
}

// NewReference validates teams and builds the lookup indexes.
func NewReference(teams []TeamIdentity) (*Reference, error) {
	if len(teams) == 0 {
		return nil, errors.Wrap(ErrInvalidReference, "empty team table")
	}

	ref := &Reference{
		byID:   make(map[int]TeamIdentity, len(teams)),
		byAbbr: make(map[string]TeamIdentity, len(teams)),
	}
	for _, t := range teams {
		if t.ID <= 0 {
			return nil, errors.Wrapf(ErrInvalidReference, "team %q has non-positive id %d", t.Abbreviation, t.ID)
		}
		if _, dup := ref.byID[t.ID]; dup {
			return nil, errors.Wrapf(ErrInvalidReference, "duplicate team id %d", t.ID)
		}
		if len(t.Abbreviation) != 3 {
			return nil, errors.Wrapf(ErrInvalidReference, "team %d abbreviation %q is not 3 letters", t.ID, t.Abbreviation)
		}
		if _, dup := ref.byAbbr[t.Abbreviation]; dup {
			return nil, errors.Wrapf(ErrInvalidReference, "duplicate abbreviation %q", t.Abbreviation)
		}
		if !t.League.Valid() {
			return nil, errors.Wrapf(ErrInvalidReference, "team %d has unknown league %q", t.ID, t.League)
		}

		t.Labels = append([]string(nil), t.Labels...)
		ref.byID[t.ID] = t
		ref.byAbbr[t.Abbreviation] = t
		ref.teams = append(ref.teams, t)
	}
	sort.Slice(ref.teams, func(i, j int) bool { return ref.teams[i].ID < ref.teams[j].ID })

	return ref, nil
}

// MustReference panics on an invalid table. Only used for compiled-in data.
func MustReference(teams []TeamIdentity) *Reference {
	ref, err := NewReference(teams)
	if err != nil {
		panic(err)
	}
	return ref
}

// Teams returns the table ordered by id.
func (r *Reference) Teams() []TeamIdentity {
	out := make([]TeamIdentity, len(r.teams))
	copy(out, r.teams)
	return out
}

// ByID looks a team up by id.
func (r *Reference) ByID(id int) (TeamIdentity, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// ByAbbreviation looks a team up by its canonical code.
func (r *Reference) ByAbbreviation(abbr string) (TeamIdentity, bool) {
	t, ok := r.byAbbr[strings.ToUpper(strings.TrimSpace(abbr))]
	return t, ok
}

// InLeague returns the teams of one league ordered by id.
func (r *Reference) InLeague(l League) []TeamIdentity {
	var out []TeamIdentity
	for _, t := range r.teams {
		if t.League == l {
			out = append(out, t)
		}
	}
	return out
}

// ValidPair reports whether abbr is the canonical code of team id.
func (r *Reference) ValidPair(id int, abbr string) bool {
	t, ok := r.byID[id]
	return ok && t.Abbreviation == abbr
}

// GameLeague is the shared league of two teams. Interleague games count toward the home team's league.
func (r *Reference) GameLeague(homeID, awayID int) (League, bool) {
	home, ok := r.byID[homeID]
	if !ok {
		return "", false
	}
	if _, ok := r.byID[awayID]; !ok {
		return "", false
	}
	return home.League, true
}

var defaultTeams = []TeamIdentity{
	{ID: 1, Abbreviation: "YOG", Name: "読売ジャイアンツ", EnglishName: "Yomiuri Giants", League: Central,
		Labels: []string{"巨人", "読売", "ジャイアンツ", "Giants", "G"}},
	{ID: 2, Abbreviation: "HAN", Name: "阪神タイガース", EnglishName: "Hanshin Tigers", League: Central,
		Labels: []string{"阪神", "タイガース", "Tigers", "T"}},
	{ID: 3, Abbreviation: "YDB", Name: "横浜DeNAベイスターズ", EnglishName: "Yokohama DeNA BayStars", League: Central,
		Labels: []string{"DeNA", "横浜", "ベイスターズ", "BayStars", "DB"}},
	{ID: 4, Abbreviation: "HIR", Name: "広島東洋カープ", EnglishName: "Hiroshima Toyo Carp", League: Central,
		Labels: []string{"広島", "カープ", "Carp", "C"}},
	{ID: 5, Abbreviation: "CHU", Name: "中日ドラゴンズ", EnglishName: "Chunichi Dragons", League: Central,
		Labels: []string{"中日", "ドラゴンズ", "Dragons", "D"}},
	{ID: 6, Abbreviation: "YAK", Name: "東京ヤクルトスワローズ", EnglishName: "Tokyo Yakult Swallows", League: Central,
		Labels: []string{"ヤクルト", "スワローズ", "Swallows", "S"}},
	{ID: 7, Abbreviation: "SOF", Name: "福岡ソフトバンクホークス", EnglishName: "Fukuoka SoftBank Hawks", League: Pacific,
		Labels: []string{"ソフトバンク", "ホークス", "Hawks", "H", "SB"}},
	{ID: 8, Abbreviation: "LOT", Name: "千葉ロッテマリーンズ", EnglishName: "Chiba Lotte Marines", League: Pacific,
		Labels: []string{"ロッテ", "マリーンズ", "Marines", "M"}},
	{ID: 9, Abbreviation: "RAK", Name: "東北楽天ゴールデンイーグルス", EnglishName: "Tohoku Rakuten Golden Eagles", League: Pacific,
		Labels: []string{"楽天", "イーグルス", "Eagles", "E"}},
	{ID: 10, Abbreviation: "ORI", Name: "オリックス・バファローズ", EnglishName: "Orix Buffaloes", League: Pacific,
		Labels: []string{"オリックス", "バファローズ", "オリックスバファローズ", "Buffaloes", "Bs", "B"}},
	{ID: 11, Abbreviation: "SEI", Name: "埼玉西武ライオンズ", EnglishName: "Saitama Seibu Lions", League: Pacific,
		Labels: []string{"西武", "ライオンズ", "Lions", "L"}},
	{ID: 12, Abbreviation: "NIP", Name: "北海道日本ハムファイターズ", EnglishName: "Hokkaido Nippon-Ham Fighters", League: Pacific,
		Labels: []string{"日本ハム", "日ハム", "ファイターズ", "Fighters", "Nippon Ham", "F"}},
}

// DefaultReference returns the twelve NPB franchises.
func DefaultReference() *Reference {
	return MustReference(defaultTeams)
}
