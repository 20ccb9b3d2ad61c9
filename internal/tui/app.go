package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/devteam/internal/orchestrator"
)

// SolveFunc runs one request through the team.
type SolveFunc func(ctx context.Context, request string) (string, error)

// SolveDoneMsg is sent when a solve returns.
type SolveDoneMsg struct {
	Request string
	Result  string
	Err     error
	Elapsed time.Duration
}

// EventMsg carries an orchestrator event into the program.
type EventMsg struct {
	Event orchestrator.Event
}

// eventsClosedMsg is sent once the event channel is closed.
type eventsClosedMsg struct{}

// App is the main model for interactive mode.
type App struct {
	solve  SolveFunc
	events <-chan orchestrator.Event

	header     *Header
	transcript *Transcript
	inputField *InputField
	spinner    spinner.Model

	width    int
	height   int
	solving  bool
	started  time.Time
	cancel   context.CancelFunc
	quitting bool
}

// NewApp creates the interactive model. events may be nil.
func NewApp(solve SolveFunc, events <-chan orchestrator.Event, version string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	a := &App{
		solve:      solve,
		events:     events,
		header:     NewHeader(version),
		transcript: NewTranscript(),
		inputField: NewInputField(),
		spinner:    sp,
	}
	a.transcript.AppendLine(dimStyle.Render("Type a request for the team. Type exit or quit to leave."))
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.inputField.Focus(), a.waitForEvent())
}

// waitForEvent blocks on the next orchestrator event.
func (a *App) waitForEvent() tea.Cmd {
	if a.events == nil {
		return nil
	}
	events := a.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Solving reports whether a request is in flight.
func (a *App) Solving() bool {
	return a.solving
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if a.solving {
				a.cancelSolve()
				return a, nil
			}
			a.quitting = true
			return a, tea.Quit
		case "esc":
			if a.solving {
				a.cancelSolve()
			}
			return a, nil
		case "pgup":
			a.transcript.ScrollPageUp()
			return a, nil
		case "pgdown":
			a.transcript.ScrollPageDown()
			return a, nil
		case "up":
			a.transcript.ScrollUp()
			return a, nil
		case "down":
			a.transcript.ScrollDown()
			return a, nil
		}
		if a.solving {
			return a, nil
		}
		var cmd tea.Cmd
		a.inputField, cmd = a.inputField.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateSizes()
		return a, nil

	case QuitRequestedMsg:
		a.quitting = true
		if a.cancel != nil {
			a.cancel()
		}
		return a, tea.Quit

	case RequestSubmittedMsg:
		if a.solving {
			return a, nil
		}
		return a, a.startSolve(msg.Request)

	case SolveDoneMsg:
		a.solving = false
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		a.appendOutcome(msg)
		return a, a.inputField.Focus()

	case EventMsg:
		a.transcript.AppendEvent(msg.Event)
		return a, a.waitForEvent()

	case eventsClosedMsg:
		a.events = nil
		return a, nil

	case spinner.TickMsg:
		if !a.solving {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) startSolve(request string) tea.Cmd {
	a.transcript.AppendRequest(request)
	a.solving = true
	a.started = time.Now()
	a.inputField.Blur()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	solve := a.solve
	started := a.started

	run := func() tea.Msg {
		result, err := solve(ctx, request)
		return SolveDoneMsg{Request: request, Result: result, Err: err, Elapsed: time.Since(started)}
	}
	return tea.Batch(run, a.spinner.Tick)
}

func (a *App) cancelSolve() {
	if a.cancel != nil {
		a.cancel()
	}
	a.transcript.AppendLine(reviseStyle.Render("canceling..."))
}

func (a *App) appendOutcome(msg SolveDoneMsg) {
	elapsed := msg.Elapsed.Round(time.Second)
	if msg.Err != nil {
		if errors.Is(msg.Err, context.Canceled) {
			a.transcript.AppendLine(reviseStyle.Render(fmt.Sprintf("canceled after %s", elapsed)))
			return
		}
		a.transcript.AppendLine(failStyle.Render(fmt.Sprintf("failed after %s: %v", elapsed, msg.Err)))
		return
	}
	a.transcript.AppendLine(okStyle.Render(fmt.Sprintf("done in %s", elapsed)))
	a.transcript.AppendLine(msg.Result)
	a.transcript.AppendLine("")
}

// updateSizes updates the sizes of child components based on terminal size.
func (a *App) updateSizes() {
	inputHeight := 3
	statusHeight := 1
	a.header.SetWidth(a.width)
	a.inputField.SetWidth(a.width)
	a.transcript.SetSize(a.width, a.height-a.header.Height()-inputHeight-statusHeight)
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	status := dimStyle.Render("enter: submit · up/down/pgup/pgdown: scroll · ctrl+c: quit")
	if a.solving {
		status = a.spinner.View() + " " +
			dimStyle.Render(fmt.Sprintf("team working (%s) · esc: cancel", time.Since(a.started).Round(time.Second)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		a.header.View(),
		a.transcript.View(),
		status,
		a.inputField.View(),
	)
}

// Run starts the interactive program and blocks until the user quits.
func Run(ctx context.Context, app *App) error {
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
