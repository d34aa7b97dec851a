package npb

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/pennant/internal/league"
)

// maxSignalRunes keeps whole-page text dumps out of the status signals.
const maxSignalRunes = 160

// ParseHTML converts raw HTML into a goquery document.
func ParseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(league.ErrParseFailure, err.Error())
	}
	return doc, nil
}

// ParseBlocks reduces every innermost table of the document to a Block. Text next to
// a table inside the same container (status line, venue, attendance) becomes the
// block's signals. No game semantics are applied here.
func ParseBlocks(doc *goquery.Document, date time.Time, source string) Page {
	page := Page{Date: league.Day(date), Source: source}

	doc.Find("table").
		FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Find("table").Length() == 0
		}).
		Each(func(_ int, table *goquery.Selection) {
			if b, ok := parseTable(table); ok {
				page.Blocks = append(page.Blocks, b)
			}
		})

	return page
}

func parseTable(table *goquery.Selection) (Block, bool) {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			cells = append(cells, cellText(c))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) < 2 {
		return Block{}, false
	}

	b := Block{Header: rows[0], Rows: rows[1:]}
	if caption := cellText(table.Find("caption").First()); caption != "" {
		b.Signals = append(b.Signals, caption)
	}
	b.Signals = append(b.Signals, surroundingText(table)...)
	return b, true
}

// surroundingText collects short text siblings of the table, walking up through
// wrappers that hold nothing but the table.
func surroundingText(table *goquery.Selection) []string {
	node := table
	for depth := 0; depth < 3; depth++ {
		parent := node.Parent()
		if parent.Length() == 0 || goquery.NodeName(parent) == "body" {
			break
		}

		var out []string
		node.Siblings().Not("table").Each(func(_ int, s *goquery.Selection) {
			if s.Find("table").Length() > 0 {
				return
			}
			if t := cellText(s); t != "" && utf8.RuneCountInString(t) <= maxSignalRunes {
				out = append(out, t)
			}
		})
		if len(out) > 0 {
			return out
		}
		node = parent
	}
	return nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
