package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accent = lipgloss.Color("#00ff9f")
	dim    = lipgloss.Color("#6e7681")
	warn   = lipgloss.Color("#ffb86c")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle  = lipgloss.NewStyle().Foreground(dim).Width(14)
	valueStyle  = lipgloss.NewStyle()
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	soonStyle   = cellStyle.Foreground(warn)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)

// kv is one line of a summary box.
type kv struct {
	key, value string
}

// renderSummary draws a titled box of key/value lines.
func renderSummary(title string, lines []kv) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	for _, l := range lines {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(l.key))
		b.WriteString(valueStyle.Render(l.value))
	}
	return boxStyle.Render(b.String())
}

// renderTable draws rows under headers. Rows for which highlight returns
// true are drawn in the warning colour.
func renderTable(headers []string, rows [][]string, highlight func(row int) bool) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(dim)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case highlight != nil && highlight(row):
				return soonStyle
			default:
				return cellStyle
			}
		}).
		String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
