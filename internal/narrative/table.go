package narrative

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// minShrinkRows is the row count below which an oversized table is sent as is.
const minShrinkRows = 5

// RenderTable renders header and the first maxRows rows as a markdown pipe
// table. Cells longer than maxCellLen runes are cut and suffixed with "...".
// While the rendered text is longer than maxChars and more than five rows
// remain, the row count is halved. It returns the table and the number of
// rows it contains.
func RenderTable(header []string, rows [][]string, maxRows, maxChars, maxCellLen int) (string, int) {
	if len(rows) == 0 {
		return "No rows: table is empty.", 0
	}

	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(header))
		for j := range header {
			if j < len(row) {
				cells[i][j] = truncateCell(row[j], maxCellLen)
			}
		}
	}

	out := renderPipe(header, cells)
	for maxChars > 0 && len(out) > maxChars && len(cells) > minShrinkRows {
		cells = cells[:len(cells)/2]
		out = renderPipe(header, cells)
	}
	return out, len(cells)
}

func truncateCell(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// renderPipe lays out a markdown pipe table. Top and bottom borders are off
// so only the header separator remains.
func renderPipe(header []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		Headers(escapeCells(header)...)
	for _, row := range rows {
		t.Row(escapeCells(row)...)
	}
	return strings.TrimRight(t.Render(), "\n")
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", " ")

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = cellEscaper.Replace(c)
	}
	return out
}
