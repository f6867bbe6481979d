package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// status is what the bar under every question shows.
type status struct {
	world  string
	locale string
	player string
}

// render produces a full-width inverted status line: world and locale on the
// left, the player's name on the right. The locale is dropped first when the
// terminal is too narrow for everything.
func (s status) render(width int) string {
	left := " " + s.world
	if s.locale != "" {
		if s.world != "" {
			left += " | "
		}
		left += s.locale
	}
	right := ""
	if s.player != "" {
		right = s.player + " "
	}

	if lipgloss.Width(left)+lipgloss.Width(right) > width && s.locale != "" {
		left = " " + s.world
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(width).Render(bar)
}
