package ocr

import (
	"regexp"
	"strings"
)

var (
	reCellSplit   = regexp.MustCompile(`\t+|[ \x{3000}]{2,}|\x{3000}`)
	reNumericCell = regexp.MustCompile(`^[-+]?[¥￥$]?[-+]?\d[\d,]*(\.\d+)?%?$`)
)

const (
	minTableCols = 3
	minTableRows = 2
)

// DetectTables finds column-aligned blocks in layout text. Pages are separated
// by form feeds. A table is a run of at least two consecutive lines that each
// split into three or more cells with at least one numeric cell; a non-numeric
// line of three or more cells directly above the run is kept as its header.
func DetectTables(text string) []Table {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var tables []Table
	for pi, page := range strings.Split(reCRLF.ReplaceAllString(text, "\n"), "\f") {
		var (
			run    [][]string
			header []string
		)
		flush := func() {
			if len(run) >= minTableRows {
				rows := run
				if header != nil {
					rows = append([][]string{header}, run...)
				}
				tables = append(tables, Table{Page: pi + 1, Rows: rows})
			}
			run = nil
		}
		var prev []string
		for _, line := range strings.Split(page, "\n") {
			cells := splitCells(line)
			if len(cells) >= minTableCols && hasNumericCell(cells) {
				if run == nil {
					header = nil
					if len(prev) >= minTableCols && !hasNumericCell(prev) {
						header = prev
					}
				}
				run = append(run, cells)
			} else {
				flush()
			}
			prev = cells
		}
		flush()
	}
	return tables
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	parts := reCellSplit.Split(line, -1)
	cells := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

func hasNumericCell(cells []string) bool {
	for _, c := range cells {
		if reNumericCell.MatchString(c) {
			return true
		}
	}
	return false
}
