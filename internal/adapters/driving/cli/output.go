package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// Palette.
var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
	colourBorder  = lipgloss.Color("#45475A")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// isTTY reports whether w is an interactive terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderTable draws rows as a bordered table on a terminal and as
// tab-free aligned text otherwise.
func renderTable(w io.Writer, headers []string, rows [][]string) string {
	if !isTTY(w) {
		return plainTable(headers, rows)
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colourBorder)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String() + "\n"
}

func plainTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	line := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(cells)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(cell + strings.Repeat(" ", widths[i]-len(cell)))
		}
		b.WriteString("\n")
	}
	line(headers)
	for _, row := range rows {
		line(row)
	}
	return b.String()
}

// severityLabel colours a severity on a terminal.
func severityLabel(w io.Writer, s domain.Severity) string {
	if !isTTY(w) {
		return s.String()
	}
	style := lipgloss.NewStyle().Foreground(colourMuted)
	switch s {
	case domain.SeverityCritical:
		style = lipgloss.NewStyle().Bold(true).Foreground(colourError)
	case domain.SeverityHigh:
		style = lipgloss.NewStyle().Foreground(colourError)
	case domain.SeverityMedium:
		style = lipgloss.NewStyle().Foreground(colourWarning)
	}
	return style.Render(s.String())
}

// flag renders a boolean as yes/no, coloured on a terminal.
func flag(w io.Writer, v bool) string {
	if !isTTY(w) {
		if v {
			return "yes"
		}
		return "no"
	}
	if v {
		return lipgloss.NewStyle().Foreground(colourSuccess).Render("yes")
	}
	return lipgloss.NewStyle().Foreground(colourMuted).Render("no")
}

// when renders an optional timestamp relative to now.
func when(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.Time(*t)
}

// shortHash trims a fingerprint for display.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// truncate shortens s to n runes for table cells.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
