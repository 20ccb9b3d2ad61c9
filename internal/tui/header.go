package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar.
type Header struct {
	width   int
	version string
}

// NewHeader creates a new Header.
func NewHeader(version string) *Header {
	return &Header{
		width:   80,
		version: version,
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header.
func (h *Header) View() string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4ECDC4")).
		Bold(true).
		Render("devteam")

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render(" coordinator · frontend · backend")

	version := ""
	if h.version != "" {
		version = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("  v" + h.version)
	}

	return lipgloss.NewStyle().
		Width(h.width).
		PaddingBottom(1).
		Render(title + subtitle + version)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 2
}
