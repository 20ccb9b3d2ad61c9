package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a task is moved to a status that
// is not reachable from its current status.
var ErrInvalidTransition = errors.New("invalid task status transition")

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusCreated indicates the task exists but has no assignee yet.
	TaskStatusCreated TaskStatus = "created"
	// TaskStatusAssigned indicates the task is bound to a role.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusInProgress indicates the assignee is producing a result.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusSubmitted indicates a result has been handed back to the coordinator.
	TaskStatusSubmitted TaskStatus = "submitted"
	// TaskStatusEvaluating indicates the coordinator is judging the result.
	TaskStatusEvaluating TaskStatus = "evaluating"
	// TaskStatusAccepted indicates the coordinator accepted the result.
	TaskStatusAccepted TaskStatus = "accepted"
	// TaskStatusRevisionRequested indicates the coordinator asked for another attempt.
	TaskStatusRevisionRequested TaskStatus = "revision_requested"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// transitions lists every legal forward move. FAILED is reachable from any
// non-terminal status and is handled separately.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusCreated:           {TaskStatusAssigned},
	TaskStatusAssigned:          {TaskStatusInProgress},
	TaskStatusInProgress:        {TaskStatusSubmitted},
	TaskStatusSubmitted:         {TaskStatusEvaluating},
	TaskStatusEvaluating:        {TaskStatusAccepted, TaskStatusRevisionRequested},
	TaskStatusAccepted:          {TaskStatusDone},
	TaskStatusRevisionRequested: {TaskStatusInProgress},
}

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusSubmitted, TaskStatusEvaluating, TaskStatusAccepted,
		TaskStatusRevisionRequested, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for DONE and FAILED.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// CanTransition reports whether a task in status s may move to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.IsTerminal() || !s.Valid() {
		return false
	}
	if next == TaskStatusFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Task represents a unit of work handed to one role.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the natural-language statement of the work.
	Description string `json:"description"`
	// ParentID is the ID of the parent task. Empty for a top-level task.
	ParentID string `json:"parent_id,omitempty"`
	// AssigneeRole is the role responsible for producing the result.
	AssigneeRole Role `json:"assignee_role,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result is the accepted artifact. Only set once the task is ACCEPTED.
	Result string `json:"result,omitempty"`
	// RevisionCount is the number of revisions requested so far.
	RevisionCount int `json:"revision_count"`
	// MaxRevisions bounds RevisionCount.
	MaxRevisions int `json:"max_revisions"`
	// Feedback is the most recent evaluation feedback.
	Feedback string `json:"feedback,omitempty"`
	// ConversationID is the conversation carrying this task's messages.
	ConversationID string `json:"conversation_id,omitempty"`
	// ChildIDs lists subtasks in decomposition order.
	ChildIDs []string `json:"child_ids,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask returns a task in CREATED status.
func NewTask(id, description, parentID string, maxRevisions int) *Task {
	return &Task{
		ID:           id,
		Description:  description,
		ParentID:     parentID,
		Status:       TaskStatusCreated,
		MaxRevisions: maxRevisions,
		CreatedAt:    time.Now(),
	}
}

// IsRoot returns true if the task has no parent.
func (t *Task) IsRoot() bool {
	return t.ParentID == ""
}

// Transition moves the task to next, stamping CompletedAt on terminal statuses.
func (t *Task) Transition(next TaskStatus) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, t.Status, next, t.ID)
	}
	t.Status = next
	if next.IsTerminal() {
		now := time.Now()
		t.CompletedAt = &now
	}
	return nil
}

// Assign binds the task to role and moves it to ASSIGNED.
func (t *Task) Assign(role Role) error {
	if !role.Valid() {
		return fmt.Errorf("assign task %s: %w: %q", t.ID, ErrUnknownRole, role)
	}
	if err := t.Transition(TaskStatusAssigned); err != nil {
		return err
	}
	t.AssigneeRole = role
	return nil
}

// Fail moves the task to FAILED and records the cause. It is a no-op on a
// task that is already terminal.
func (t *Task) Fail(cause error) {
	if t.Status.IsTerminal() {
		return
	}
	_ = t.Transition(TaskStatusFailed)
	if cause != nil {
		t.Error = cause.Error()
	}
}

// Clone returns a copy that shares no mutable state with t.
func (t *Task) Clone() Task {
	c := *t
	if t.ChildIDs != nil {
		c.ChildIDs = append([]string(nil), t.ChildIDs...)
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}

// Subtask is one entry of a decomposition plan.
type Subtask struct {
	// Description is the work the subtask asks for.
	Description string `json:"description"`
	// AssigneeRole is the worker role that should do it.
	AssigneeRole Role `json:"assignee_role"`
}
