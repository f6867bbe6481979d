// Package tui is a Bubble Tea Presenter. Narrative is written to the
// terminal's scrollback; every question runs a short-lived program that
// renders a menu or an input line above a status bar.
package tui

// History remembers free-text answers so earlier ones can be recalled with
// the arrow keys. It is bounded; the oldest answer is dropped first.
type History struct {
	entries []string
	max     int
	cursor  int // -1 = not navigating, 0..len-1 = position in entries
}

// NewHistory creates a history with room for max answers.
func NewHistory(max int) *History {
	return &History{
		entries: make([]string, 0, max),
		max:     max,
		cursor:  -1,
	}
}

// Push records an answer and stops navigation. Empty answers and repeats of
// the latest answer are not recorded.
func (h *History) Push(answer string) {
	h.cursor = -1
	if answer == "" || (len(h.entries) > 0 && h.entries[len(h.entries)-1] == answer) {
		return
	}
	h.entries = append(h.entries, answer)
	if len(h.entries) > h.max {
		h.entries = h.entries[1:]
	}
}

// Prev steps to the next older answer. It stops at the oldest one.
func (h *History) Prev() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	switch {
	case h.cursor == -1:
		h.cursor = len(h.entries) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Next steps to the next newer answer. Past the newest it returns false,
// meaning the input should be cleared.
func (h *History) Next() (string, bool) {
	if h.cursor == -1 {
		return "", false
	}
	h.cursor++
	if h.cursor >= len(h.entries) {
		h.cursor = -1
		return "", false
	}
	return h.entries[h.cursor], true
}

// Len is the number of remembered answers.
func (h *History) Len() int { return len(h.entries) }
