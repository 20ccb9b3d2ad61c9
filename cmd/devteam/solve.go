package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/devteam/internal/orchestrator"
	"github.com/ShayCichocki/devteam/internal/tui"
	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	solveOutput       string
	solveMaxRevisions int
	solveMaxParallel  int
	solveIntegrate    bool
	solveNoFailFast   bool
)

var solveCmd = &cobra.Command{
	Use:   "solve <request>",
	Short: "Have the team solve one request",
	Long: `Solve sends one request through the team and prints the final answer.

The coordinator decomposes the request, the developers work on their
subtasks in parallel and every result is reviewed before it is accepted.
If any subtask exhausts its revisions the solve fails and the last review
feedback is printed.

Examples:
  devteam solve "Build a todo app with a REST API"
  devteam solve --max-revisions 3 --output answer.md "Add login to the dashboard"

Write 'devteam stop' from another terminal to cancel a running solve.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveOutput, "output", "o", "", "Also write the final answer to this file")
	solveCmd.Flags().IntVar(&solveMaxRevisions, "max-revisions", 0, "Revisions a subtask may request (overrides team.max_revisions)")
	solveCmd.Flags().IntVar(&solveMaxParallel, "max-parallel", 0, "Subtasks worked on at once, 0 for no limit (overrides team.max_parallel)")
	solveCmd.Flags().BoolVar(&solveIntegrate, "integrate", false, "Have the coordinator merge the accepted results into one answer")
	solveCmd.Flags().BoolVar(&solveNoFailFast, "no-fail-fast", false, "Let the other subtasks finish when one fails")
}

func runSolve(cmd *cobra.Command, args []string) error {
	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		return errors.New("request is empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-revisions") {
		cfg.Team.MaxRevisions = solveMaxRevisions
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.Team.MaxParallel = solveMaxParallel
	}
	if cmd.Flags().Changed("integrate") {
		cfg.Team.Integrate = solveIntegrate
	}
	if solveNoFailFast {
		cfg.Team.FailFast = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, err := newRuntime(cfg, runtimeOptions{events: flagVerbose})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, release := watchKill(ctx, cfg.Signals.Dir, rt.logger)
	defer release()

	var printer sync.WaitGroup
	if rt.emitter != nil {
		printer.Add(1)
		go func() {
			defer printer.Done()
			printEvents(os.Stderr, rt.emitter.Events())
		}()
	}

	started := time.Now()
	report, solveErr := rt.orch.Run(ctx, request)
	if rt.emitter != nil {
		rt.emitter.Close()
		printer.Wait()
	}

	out := cmd.OutOrStdout()
	if report != nil {
		printReport(out, report)
	}
	if flagVerbose {
		in, outTokens := rt.tokens.Total()
		fmt.Fprintf(os.Stderr, "%d model calls, %d input and %d output tokens\n", rt.tokens.Calls(), in, outTokens)
	}

	elapsed := time.Since(started).Round(time.Second)
	if solveErr != nil {
		if errors.Is(solveErr, context.DeadlineExceeded) {
			fmt.Fprintf(out, "\n%s Timed out after %s\n", color.RedString("✗"), elapsed)
		} else if errors.Is(solveErr, orchestrator.ErrCanceled) {
			fmt.Fprintf(out, "\n%s Canceled after %s\n", color.YellowString("⚠"), elapsed)
		} else {
			fmt.Fprintf(out, "\n%s Failed after %s\n", color.RedString("✗"), elapsed)
		}
		return solveErr
	}

	fmt.Fprintf(out, "\n%s Done in %s\n\n", color.GreenString("✓"), elapsed)
	fmt.Fprintln(out, report.Result())

	if solveOutput != "" {
		if err := os.WriteFile(solveOutput, []byte(report.Result()+"\n"), 0644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		printStatus(out, "✓", "Wrote "+solveOutput, color.FgGreen)
	}
	return nil
}

// printReport lists every subtask with its final status.
func printReport(w io.Writer, report *orchestrator.Report) {
	if len(report.Subtasks) == 0 {
		return
	}
	if report.Degraded {
		printStatus(w, "⚠", "Plan could not be parsed, the request went to one developer", color.FgYellow)
	}
	for _, t := range report.Subtasks {
		line := fmt.Sprintf("[%s] %s", t.AssigneeRole, firstLine(t.Description))
		if t.RevisionCount > 0 {
			line += fmt.Sprintf(" (%d revisions)", t.RevisionCount)
		}
		switch t.Status {
		case models.TaskStatusDone:
			printStatus(w, "✓", line, color.FgGreen)
		case models.TaskStatusFailed:
			printStatus(w, "✗", line, color.FgRed)
			if t.Feedback != "" {
				fmt.Fprintf(w, "    last feedback: %s\n", firstLine(t.Feedback))
			}
		default:
			printStatus(w, "·", line, color.FgHiBlack)
		}
	}
}

// printEvents writes one line per event until events is closed.
func printEvents(w io.Writer, events <-chan orchestrator.Event) {
	for ev := range events {
		if line := tui.FormatEvent(ev); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
