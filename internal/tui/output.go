package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/devteam/internal/orchestrator"
	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	reviseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

// Transcript is a scrollable log of requests, task events and answers.
type Transcript struct {
	// lines contains every logical line, unwrapped.
	lines []string
	// scrollOffset is the current scroll position (0 = top).
	scrollOffset int
	// width is the viewport width in characters.
	width int
	// height is the viewport height in lines.
	height int
	// autoScroll keeps the newest line visible.
	autoScroll bool
}

// NewTranscript creates an empty Transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		width:      80,
		height:     20,
		autoScroll: true,
	}
}

// AppendLine adds text, which may span several lines.
func (o *Transcript) AppendLine(text string) {
	o.lines = append(o.lines, strings.Split(strings.TrimRight(text, "\n"), "\n")...)
	if o.autoScroll {
		o.scrollToBottom()
	}
}

// AppendRequest records a submitted request.
func (o *Transcript) AppendRequest(request string) {
	o.AppendLine(userStyle.Render("> ") + request)
}

// AppendEvent renders an orchestrator event. Events without a useful
// rendering are skipped.
func (o *Transcript) AppendEvent(ev orchestrator.Event) {
	if line := FormatEvent(ev); line != "" {
		o.AppendLine(line)
	}
}

// FormatEvent returns the transcript line for ev, or "" to skip it.
func FormatEvent(ev orchestrator.Event) string {
	switch ev.Type {
	case orchestrator.EventDecomposed:
		return dimStyle.Render("plan: " + ev.Message)
	case orchestrator.EventTaskCreated:
		if ev.ParentID == "" {
			return ""
		}
		return dimStyle.Render(fmt.Sprintf("  [%s] %s", ev.Role, ev.Message))
	case orchestrator.EventTaskTransition:
		if ev.ParentID == "" {
			return ""
		}
		return formatTransition(ev)
	case orchestrator.EventSolveFailed:
		return failStyle.Render(fmt.Sprintf("solve failed: %v", ev.Error))
	}
	return ""
}

func formatTransition(ev orchestrator.Event) string {
	prefix := fmt.Sprintf("  %-8s %s", ev.Role, shortID(ev.TaskID))
	switch ev.To {
	case models.TaskStatusInProgress:
		if ev.Revision > 0 {
			return reviseStyle.Render(fmt.Sprintf("%s working on revision %d", prefix, ev.Revision))
		}
		return fmt.Sprintf("%s working", prefix)
	case models.TaskStatusEvaluating:
		return dimStyle.Render(prefix + " under review")
	case models.TaskStatusRevisionRequested:
		return reviseStyle.Render(prefix + " revision requested")
	case models.TaskStatusDone:
		return okStyle.Render(prefix + " accepted")
	case models.TaskStatusFailed:
		return failStyle.Render(fmt.Sprintf("%s failed: %v", prefix, ev.Error))
	}
	return ""
}

func shortID(id string) string {
	return id[:min(8, len(id))]
}

// View renders the visible part of the transcript.
func (o *Transcript) View() string {
	wrappedLines := o.wrapLines()

	totalLines := len(wrappedLines)
	if o.scrollOffset > totalLines-o.height {
		o.scrollOffset = max(0, totalLines-o.height)
	}

	start := o.scrollOffset
	end := min(start+o.height, totalLines)

	var sb strings.Builder
	for i := start; i < end; i++ {
		sb.WriteString(wrappedLines[i])
		if i < end-1 {
			sb.WriteString("\n")
		}
	}
	// Pad so the input box stays at the bottom.
	for i := end - start; i < o.height; i++ {
		sb.WriteString("\n")
	}
	return sb.String()
}

// ScrollUp moves the viewport up by one line.
func (o *Transcript) ScrollUp() {
	o.autoScroll = false
	if o.scrollOffset > 0 {
		o.scrollOffset--
	}
}

// ScrollDown moves the viewport down by one line.
func (o *Transcript) ScrollDown() {
	maxOffset := max(0, len(o.wrapLines())-o.height)
	if o.scrollOffset < maxOffset {
		o.scrollOffset++
	}
	o.autoScroll = o.scrollOffset == maxOffset
}

// ScrollPageUp moves the viewport up by one page.
func (o *Transcript) ScrollPageUp() {
	o.autoScroll = false
	o.scrollOffset = max(0, o.scrollOffset-o.height)
}

// ScrollPageDown moves the viewport down by one page.
func (o *Transcript) ScrollPageDown() {
	maxOffset := max(0, len(o.wrapLines())-o.height)
	o.scrollOffset = min(o.scrollOffset+o.height, maxOffset)
	o.autoScroll = o.scrollOffset == maxOffset
}

// SetSize updates the viewport dimensions.
func (o *Transcript) SetSize(width, height int) {
	o.width = width
	o.height = max(1, height)
	if o.autoScroll {
		o.scrollToBottom()
	}
}

// Len returns the number of logical lines.
func (o *Transcript) Len() int {
	return len(o.lines)
}

// scrollToBottom moves the viewport to show the last lines.
func (o *Transcript) scrollToBottom() {
	o.scrollOffset = max(0, len(o.wrapLines())-o.height)
}

// wrapLines wraps all lines to fit the viewport width.
func (o *Transcript) wrapLines() []string {
	if o.width <= 0 {
		return o.lines
	}

	var wrapped []string
	for _, line := range o.lines {
		wrapped = append(wrapped, strings.Split(lipgloss.NewStyle().Width(o.width).Render(line), "\n")...)
	}
	return wrapped
}
