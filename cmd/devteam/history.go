package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/devteam/internal/state"
	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	historyStatus    string
	historyLimit     int
	historyMessages  bool
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past solves",
	Long: `List the solves recorded in the history database, newest first.

Solves left running by a process that no longer exists are marked
interrupted before they are listed.`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <solve-id>",
	Short: "Show one solve with its task tree",
	Long: `Show a solve, its subtasks and their outcome. The ID may be any
unique prefix. With --messages every archived conversation is printed too.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryShow,
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old solves",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPurge,
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only list solves with this status (running, completed, failed, canceled, interrupted)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of solves to list, 0 for all")
	historyShowCmd.Flags().BoolVarP(&historyMessages, "messages", "m", false, "Print the archived conversations")
	historyPurgeCmd.Flags().DurationVar(&historyOlderThan, "older-than", 30*24*time.Hour, "Delete solves started longer ago than this")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}

// openHistory opens the configured history database. It returns nil and no
// error when history is disabled or nothing was recorded yet.
func openHistory() (*state.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		fmt.Println("History is disabled (history.enabled: false).")
		return nil, nil
	}
	if _, err := os.Stat(cfg.History.DBPath); errors.Is(err, os.ErrNotExist) {
		fmt.Println("No solves recorded yet. Run 'devteam solve <request>' to start.")
		return nil, nil
	}
	db, err := state.Open(cfg.History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil || db == nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if _, err := db.MarkInterrupted(ctx); err != nil {
		return err
	}

	var status *state.SolveStatus
	if historyStatus != "" {
		s := state.SolveStatus(strings.ToLower(historyStatus))
		status = &s
	}
	solves, err := db.ListSolves(ctx, status, historyLimit)
	if err != nil {
		return err
	}
	if len(solves) == 0 {
		fmt.Println("No solves found.")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, s := range solves {
		fmt.Fprintf(out, "%s  %s  %-8s  %s\n",
			shortID(s.ID),
			colorSolveStatus(s.Status),
			solveDuration(s),
			truncate(firstLine(s.Request), 60))
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil || db == nil {
		return err
	}
	defer db.Close()
	return showSolve(cmd.Context(), cmd.OutOrStdout(), db, args[0], historyMessages)
}

func showSolve(ctx context.Context, out io.Writer, db *state.DB, id string, withMessages bool) error {
	s, err := db.GetSolve(ctx, id)
	if err != nil {
		return err
	}
	tasks, err := db.ListTasks(ctx, s.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Solve %s\n", s.ID)
	fmt.Fprintf(out, "  Status:  %s\n", colorSolveStatus(s.Status))
	fmt.Fprintf(out, "  Started: %s\n", s.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "  Took:    %s\n", solveDuration(*s))
	fmt.Fprintf(out, "  Request: %s\n", s.Request)
	if s.Failure != "" {
		fmt.Fprintf(out, "  Failure: %s\n", color.RedString(s.Failure))
	}

	fmt.Fprintln(out)
	for _, t := range tasks {
		if t.IsRoot() {
			continue
		}
		fmt.Fprintf(out, "  %s [%s] %s  %s", shortID(t.ID), t.AssigneeRole, colorTaskStatus(t.Status), firstLine(t.Description))
		if t.RevisionCount > 0 {
			fmt.Fprintf(out, " (%d/%d revisions)", t.RevisionCount, t.MaxRevisions)
		}
		fmt.Fprintln(out)
		if t.Status == models.TaskStatusFailed && t.Feedback != "" {
			fmt.Fprintf(out, "      last feedback: %s\n", firstLine(t.Feedback))
		}
	}

	if withMessages {
		for _, t := range tasks {
			if t.ConversationID == "" {
				continue
			}
			msgs, err := db.ListMessages(ctx, t.ConversationID)
			if err != nil {
				return err
			}
			printConversation(out, t, msgs)
		}
	}

	if s.Result != "" {
		fmt.Fprintf(out, "\n%s\n", s.Result)
	}
	return nil
}

func printConversation(out io.Writer, t models.Task, msgs []models.Message) {
	label := string(t.AssigneeRole)
	if t.IsRoot() {
		label = "root"
	}
	fmt.Fprintf(out, "\n--- %s %s ---\n", label, shortID(t.ID))
	for _, m := range msgs {
		header := fmt.Sprintf("[%d] %s -> %s (%s)", m.Sequence, m.SenderRole, m.RecipientRole, m.Kind)
		fmt.Fprintln(out, color.New(color.Bold).Sprint(header))
		fmt.Fprintln(out, strings.TrimSpace(m.Content))
	}
}

func runHistoryPurge(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil || db == nil {
		return err
	}
	defer db.Close()

	n, err := db.PurgeOldSolves(cmd.Context(), historyOlderThan)
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Deleted %d solves older than %s", n, historyOlderThan), color.FgGreen)
	return nil
}

func colorSolveStatus(s state.SolveStatus) string {
	text := fmt.Sprintf("%-11s", s)
	switch s {
	case state.SolveCompleted:
		return color.GreenString(text)
	case state.SolveFailed:
		return color.RedString(text)
	case state.SolveCanceled, state.SolveInterrupted:
		return color.YellowString(text)
	default:
		return color.CyanString(text)
	}
}

func colorTaskStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusDone:
		return color.GreenString(string(s))
	case models.TaskStatusFailed:
		return color.RedString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func solveDuration(s state.Solve) string {
	end := time.Now()
	if s.FinishedAt != nil {
		end = *s.FinishedAt
	}
	return formatDuration(end.Sub(s.StartedAt))
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func shortID(id string) string {
	return id[:min(8, len(id))]
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
