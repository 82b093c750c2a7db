package ocr

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "title": true,
}

// extractHTML reads an illustration saved as a web page. Tables come straight
// from the DOM; the text keeps one line per block element and one tab between
// table cells.
func (e *Extractor) extractHTML(path string) (ExtractionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ExtractionResult{Method: "html"}, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return ExtractionResult{Method: "html"}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var tables []Table
	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		var rows [][]string
		tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				row = append(row, strings.Join(strings.Fields(cell.Text()), " "))
			})
			if len(row) > 0 {
				rows = append(rows, row)
			}
		})
		if len(rows) > 0 {
			tables = append(tables, Table{Page: 1, Rows: rows})
		}
	})

	var b strings.Builder
	for _, n := range doc.Selection.Nodes {
		writeNodeText(&b, n)
	}
	return ExtractionResult{
		Text:   Normalize(b.String()),
		Tables: tables,
		Pages:  1,
		Method: "html",
	}, nil
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "td" || n.Data == "th" {
			b.WriteByte('\t')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		b.WriteByte('\n')
	}
}
