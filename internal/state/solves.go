package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/ShayCichocki/devteam/internal/conversation"
	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousID is returned when an id prefix matches more than one solve.
	ErrAmbiguousID = errors.New("ambiguous id prefix")
)

// SolveStatus represents the status of a solve.
type SolveStatus string

const (
	SolveRunning     SolveStatus = "running"
	SolveCompleted   SolveStatus = "completed"
	SolveFailed      SolveStatus = "failed"
	SolveCanceled    SolveStatus = "canceled"
	SolveInterrupted SolveStatus = "interrupted"
)

// Solve is one request handled by the team.
type Solve struct {
	ID         string      `json:"id"`
	Request    string      `json:"request"`
	Status     SolveStatus `json:"status"`
	Result     string      `json:"result,omitempty"`
	Failure    string      `json:"failure,omitempty"`
	PID        int         `json:"pid"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// StartSolve records a new running solve owned by this process.
func (db *DB) StartSolve(ctx context.Context, solveID, request string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO solves (id, request, status, pid, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, solveID, request, string(SolveRunning), os.Getpid(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("start solve: %w", err)
	}
	return nil
}

// FinishSolve stores the outcome of a solve. A nil failure means success.
func (db *DB) FinishSolve(ctx context.Context, solveID, result string, failure error) error {
	status := SolveCompleted
	var failureText any
	if failure != nil {
		status = SolveFailed
		if errors.Is(failure, context.Canceled) {
			status = SolveCanceled
		}
		failureText = failure.Error()
	}

	res, err := db.Exec(ctx, `
		UPDATE solves SET status = ?, result = ?, failure = ?, finished_at = ?
		WHERE id = ?
	`, string(status), result, failureText, formatTime(time.Now()), solveID)
	if err != nil {
		return fmt.Errorf("finish solve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish solve %s: %w", solveID, ErrNotFound)
	}
	return nil
}

const solveColumns = `id, request, status, COALESCE(result, ''), COALESCE(failure, ''), COALESCE(pid, 0), started_at, finished_at`

func scanSolve(scan func(dest ...any) error) (Solve, error) {
	var s Solve
	var startedAt string
	var finishedAt sql.NullString
	if err := scan(&s.ID, &s.Request, &s.Status, &s.Result, &s.Failure, &s.PID, &startedAt, &finishedAt); err != nil {
		return Solve{}, err
	}
	s.StartedAt, _ = parseTime(startedAt)
	s.FinishedAt = parseNullableTime(finishedAt)
	return s, nil
}

// GetSolve retrieves a solve by ID or by a unique ID prefix.
func (db *DB) GetSolve(ctx context.Context, id string) (*Solve, error) {
	rows, err := db.Query(ctx, `
		SELECT `+solveColumns+`
		FROM solves WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2
	`, id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("get solve: %w", err)
	}
	defer rows.Close()

	var found []Solve
	for rows.Next() {
		s, err := scanSolve(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		found = append(found, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get solve: %w", err)
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("solve %s: %w", id, ErrNotFound)
	case found[0].ID == id || len(found) == 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("solve %s: %w", id, ErrAmbiguousID)
	}
}

// ListSolves lists solves newest first, optionally filtered by status.
// A limit <= 0 returns all of them.
func (db *DB) ListSolves(ctx context.Context, status *SolveStatus, limit int) ([]Solve, error) {
	query := `SELECT ` + solveColumns + ` FROM solves`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list solves: %w", err)
	}
	defer rows.Close()

	var solves []Solve
	for rows.Next() {
		s, err := scanSolve(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		solves = append(solves, s)
	}
	return solves, rows.Err()
}

// MarkInterrupted flags running solves whose owning process is gone.
// It returns the solves it changed.
func (db *DB) MarkInterrupted(ctx context.Context) ([]Solve, error) {
	status := SolveRunning
	running, err := db.ListSolves(ctx, &status, 0)
	if err != nil {
		return nil, err
	}

	var interrupted []Solve
	for _, s := range running {
		if s.PID == os.Getpid() || isProcessAlive(s.PID) {
			continue
		}
		if _, err := db.Exec(ctx, `
			UPDATE solves SET status = ?, finished_at = ? WHERE id = ? AND status = ?
		`, string(SolveInterrupted), formatTime(time.Now()), s.ID, string(SolveRunning)); err != nil {
			return nil, fmt.Errorf("mark solve %s interrupted: %w", s.ID, err)
		}
		s.Status = SolveInterrupted
		interrupted = append(interrupted, s)
	}
	return interrupted, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// SaveTask inserts or updates a task of a solve.
func (db *DB) SaveTask(ctx context.Context, solveID string, t models.Task) error {
	var parentID any
	if t.ParentID != "" {
		parentID = t.ParentID
	}
	_, err := db.Exec(ctx, `
		INSERT INTO tasks (id, solve_id, parent_id, description, assignee_role, status, result, feedback, error,
			revision_count, max_revisions, conversation_id, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			assignee_role = excluded.assignee_role,
			status = excluded.status,
			result = excluded.result,
			feedback = excluded.feedback,
			error = excluded.error,
			revision_count = excluded.revision_count,
			conversation_id = excluded.conversation_id,
			completed_at = excluded.completed_at
	`, t.ID, solveID, parentID, t.Description, string(t.AssigneeRole), string(t.Status), t.Result, t.Feedback, t.Error,
		t.RevisionCount, t.MaxRevisions, t.ConversationID, formatTime(t.CreatedAt), nullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// ListTasks returns the tasks of a solve, root first, children in creation
// order. ChildIDs are filled in from the stored parent links.
func (db *DB) ListTasks(ctx context.Context, solveID string) ([]models.Task, error) {
	rows, err := db.Query(ctx, `
		SELECT id, COALESCE(parent_id, ''), description, COALESCE(assignee_role, ''), status,
			COALESCE(result, ''), COALESCE(feedback, ''), COALESCE(error, ''),
			revision_count, max_revisions, COALESCE(conversation_id, ''), created_at, completed_at
		FROM tasks WHERE solve_id = ?
		ORDER BY parent_id IS NOT NULL, rowid
	`, solveID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	index := make(map[string]int)
	for rows.Next() {
		var t models.Task
		var createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.ParentID, &t.Description, &t.AssigneeRole, &t.Status,
			&t.Result, &t.Feedback, &t.Error, &t.RevisionCount, &t.MaxRevisions, &t.ConversationID,
			&createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.CreatedAt, _ = parseTime(createdAt)
		t.CompletedAt = parseNullableTime(completedAt)
		index[t.ID] = len(tasks)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	for _, t := range tasks {
		if i, ok := index[t.ParentID]; ok {
			tasks[i].ChildIDs = append(tasks[i].ChildIDs, t.ID)
		}
	}
	return tasks, nil
}

// ArchiveConversation stores a read-only conversation and its messages.
// Archiving the same conversation again replaces the stored copy.
func (db *DB) ArchiveConversation(ctx context.Context, snap conversation.Snapshot) error {
	participants := make([]string, len(snap.Participants))
	for i, p := range snap.Participants {
		participants[i] = string(p)
	}

	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, snap.ID); err != nil {
			return fmt.Errorf("archive conversation %s: %w", snap.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, task_id, participants, archived_at) VALUES (?, ?, ?, ?)
		`, snap.ID, snap.TaskID, strings.Join(participants, ","), formatTime(time.Now())); err != nil {
			return fmt.Errorf("archive conversation %s: %w", snap.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO messages (id, conversation_id, sequence, sender_role, recipient_role, kind, in_reply_to, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare message insert: %w", err)
		}
		defer stmt.Close()

		for _, m := range snap.Messages {
			if _, err := stmt.ExecContext(ctx, m.ID, snap.ID, m.Sequence, string(m.SenderRole), string(m.RecipientRole),
				string(m.Kind), m.InReplyTo, m.Content, formatTime(m.CreatedAt)); err != nil {
				return fmt.Errorf("archive message %d of %s: %w", m.Sequence, snap.ID, err)
			}
		}
		return nil
	})
}

// ListMessages returns an archived conversation in sequence order.
func (db *DB) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := db.Query(ctx, `
		SELECT id, conversation_id, sequence, sender_role, recipient_role, kind, COALESCE(in_reply_to, ''), content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY sequence
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sequence, &m.SenderRole, &m.RecipientRole,
			&m.Kind, &m.InReplyTo, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
