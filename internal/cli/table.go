package cli

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

const tablePadding = 2

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// writeTable prints rows as space-aligned columns. Column widths are measured
// in terminal cells with color codes ignored. A nil header prints no header row.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	widths := columnWidths(headers, rows)
	if len(widths) == 0 {
		return nil
	}

	w := bufio.NewWriter(out)
	if len(headers) > 0 {
		writeTableRow(w, widths, headers)
	}
	for _, row := range rows {
		writeTableRow(w, widths, row)
	}
	return w.Flush()
}

func columnWidths(headers []string, rows [][]string) []int {
	cols := len(headers)
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	widths := make([]int, cols)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], cellWidth(cell))
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}
	return widths
}

// writeTableRow writes one row; bufio.Writer keeps the first error, which
// Flush reports.
func writeTableRow(w *bufio.Writer, widths []int, row []string) {
	last := len(widths) - 1
	for i := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		_, _ = w.WriteString(cell)
		if i < last {
			pad := max(widths[i]-cellWidth(cell), 0) + tablePadding
			_, _ = w.WriteString(strings.Repeat(" ", pad))
		}
	}
	_ = w.WriteByte('\n')
}

func cellWidth(cell string) int {
	return runewidth.StringWidth(stripANSI(cell))
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func stripANSI(value string) string {
	if !strings.Contains(value, "\x1b") {
		return value
	}
	return ansiSequence.ReplaceAllString(value, "")
}
