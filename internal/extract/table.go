// Package extract turns GEO accession pages into structured study and sample
// fields.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// cell is one two-column row with its value cell kept intact so callers can
// read either flattened text or individual text nodes.
type cell struct {
	name  string
	value *goquery.Selection
}

// rows returns every row of the first table whose descendant td count is
// exactly two. Layout rows wrapping nested tables have more cells and are
// skipped, leaving the attribute rows.
func rows(doc *goquery.Document) []cell {
	var out []cell
	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() != 2 {
			return
		}
		out = append(out, cell{
			name:  strings.TrimSpace(tds.Eq(0).Text()),
			value: tds.Eq(1),
		})
	})
	return out
}

// ParseTable flattens the primary two-column table of doc into an ordered
// attribute table. Values are the cell's trimmed text nodes joined by a single
// space.
func ParseTable(doc *goquery.Document) geo.AttributeTable {
	return attributes(rows(doc))
}

func attributes(cells []cell) geo.AttributeTable {
	table := make(geo.AttributeTable, 0, len(cells))
	for _, c := range cells {
		table = append(table, geo.Row{Name: c.name, Value: strings.Join(strippedStrings(c.value), " ")})
	}
	return table
}

// parseDocument never fails: unparsable input becomes an empty document.
func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		empty, _ := goquery.NewDocumentFromReader(strings.NewReader(""))
		return empty, err
	}
	return doc, nil
}

// strippedStrings returns the cell's text lines: text nodes split on
// newlines, each trimmed, skipping the ones that are blank after trimming.
func strippedStrings(sel *goquery.Selection) []string {
	var out []string
	for _, n := range sel.Nodes {
		collectText(n, &out)
	}
	return out
}

func collectText(n *html.Node, out *[]string) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		for _, line := range strings.Split(n.Data, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				*out = append(*out, s)
			}
		}
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, out)
	}
}
