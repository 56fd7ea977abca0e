// Package htmlutil reads tables back out of rendered storage-format pages.
package htmlutil

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parse parses a storage-format body. Macro elements such as
// ac:structured-macro are kept as ordinary elements.
func Parse(body string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing storage body: %w", err)
	}
	return doc, nil
}

// Tables returns every table of the document in order.
func Tables(doc *goquery.Document) []*goquery.Selection {
	var out []*goquery.Selection
	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}

// TableRows extracts the body rows of table as header→value maps. Headers
// come from <thead>. A cell spanning rows is repeated into the following
// rows, and a cell spanning columns fills every column it covers.
func TableRows(table *goquery.Selection) []map[string]string {
	var headers []string
	table.Find("thead tr").First().Find("th").Each(func(_ int, s *goquery.Selection) {
		headers = append(headers, normalizeHeader(s.Text()))
	})
	if len(headers) == 0 {
		return nil
	}

	var (
		rows    []map[string]string
		carried = make(map[int]spanned)
	)
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		m := make(map[string]string, len(headers))
		col := 0
		cells := tr.Find("td")
		next := 0
		for col < len(headers) {
			if c, ok := carried[col]; ok {
				m[headers[col]] = c.text
				if c.left--; c.left == 0 {
					delete(carried, col)
				} else {
					carried[col] = c
				}
				col++
				continue
			}
			if next >= cells.Length() {
				break
			}
			cell := cells.Eq(next)
			next++

			text := strings.TrimSpace(cell.Text())
			span := intAttr(cell, "colspan")
			for i := 0; i < span && col < len(headers); i++ {
				m[headers[col]] = text
				if rs := intAttr(cell, "rowspan"); rs > 1 {
					carried[col] = spanned{text: text, left: rs - 1}
				}
				col++
			}
		}
		if len(m) > 0 {
			rows = append(rows, m)
		}
	})
	return rows
}

type spanned struct {
	text string
	left int
}

func intAttr(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 1 {
		return 1
	}
	return n
}

// TextOf returns the trimmed text of the first element matching the selector.
func TextOf(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
