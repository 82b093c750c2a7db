package ocr

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfTextLayer reads the embedded text of every page. The pdf package panics on
// some malformed inputs, so failures of any kind come back as an error.
func pdfTextLayer(path string, maxPages int) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text layer: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("pdf open: %w", err)
	}
	defer f.Close()

	pages = r.NumPage()
	limit := pages
	if maxPages > 0 && limit > maxPages {
		limit = maxPages
	}
	var b strings.Builder
	for i := 1; i <= limit; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("pdf page %d: %w", i, err)
		}
		if i > 1 {
			b.WriteString("\f")
		}
		b.WriteString(content)
	}
	return b.String(), pages, nil
}
