package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RequestSubmittedMsg is sent when the user submits a request.
type RequestSubmittedMsg struct {
	Request string
}

// QuitRequestedMsg is sent when the user types exit or quit.
type QuitRequestedMsg struct{}

// IsExitCommand reports whether text asks to leave interactive mode.
func IsExitCommand(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "exit", "quit":
		return true
	}
	return false
}

// InputField is a text input component for entering requests.
type InputField struct {
	input textinput.Model
	width int
}

// NewInputField creates a new InputField.
func NewInputField() *InputField {
	ti := textinput.New()
	ti.Placeholder = "Describe what the team should build and press Enter..."
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 60

	return &InputField{
		input: ti,
		width: 80,
	}
}

// SetWidth sets the width of the input field.
func (f *InputField) SetWidth(width int) {
	f.width = width
	f.input.Width = width - 4 // Account for prompt and padding
}

// Update handles messages for the input field.
func (f *InputField) Update(msg tea.Msg) (*InputField, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
		text := strings.TrimSpace(f.input.Value())
		if text == "" {
			return f, nil
		}
		f.input.Reset()
		if IsExitCommand(text) {
			return f, func() tea.Msg { return QuitRequestedMsg{} }
		}
		return f, func() tea.Msg { return RequestSubmittedMsg{Request: text} }
	}

	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return f, cmd
}

// View renders the input field.
func (f *InputField) View() string {
	promptStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(f.width - 2)

	prompt := promptStyle.Render("> ")
	return boxStyle.Render(prompt + f.input.View())
}

// Value returns the current text.
func (f *InputField) Value() string {
	return f.input.Value()
}

// Focus sets focus on the input field.
func (f *InputField) Focus() tea.Cmd {
	return f.input.Focus()
}

// Blur removes focus from the input field.
func (f *InputField) Blur() {
	f.input.Blur()
}
