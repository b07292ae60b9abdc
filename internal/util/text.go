// Package util holds small display helpers shared by the command layer.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Truncate shortens s to at most maxWidth visual columns, appending "..."
// when anything was cut. Styled strings keep their escape sequences
// intact, so truncated lipgloss output stays correctly colored.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// PadRight pads s with spaces to the given visual width, accounting for
// escape sequences. Strings already at or past the width are returned
// unchanged.
func PadRight(s string, width int) string {
	gap := width - lipgloss.Width(s)
	for gap > 0 {
		s += " "
		gap--
	}
	return s
}
