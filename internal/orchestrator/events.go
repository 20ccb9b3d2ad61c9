package orchestrator

import (
	"time"

	"github.com/ShayCichocki/devteam/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventSolveStarted indicates a request was accepted for solving.
	EventSolveStarted EventType = "solve_started"
	// EventDecomposed indicates the request was split into subtasks.
	EventDecomposed EventType = "decomposed"
	// EventTaskCreated indicates a task was created.
	EventTaskCreated EventType = "task_created"
	// EventTaskTransition indicates a task changed status.
	EventTaskTransition EventType = "task_transition"
	// EventMessage indicates a message was appended to a conversation.
	EventMessage EventType = "message"
	// EventRetry indicates an agent call is being retried.
	EventRetry EventType = "retry"
	// EventSolveDone indicates the solve finished successfully.
	EventSolveDone EventType = "solve_done"
	// EventSolveFailed indicates the solve finished with a TeamFailure.
	EventSolveFailed EventType = "solve_failed"
)

// Event is emitted by the orchestrator while a solve runs.
// These events are used to update the TUI and the verbose CLI output.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// SolveID identifies the solve the event belongs to.
	SolveID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// ParentID is the ID of the parent task, if applicable.
	ParentID string
	// Role is the assignee of the task, or the sender of a message.
	Role models.Role
	// From is the previous status of a transition.
	From models.TaskStatus
	// To is the new status of a transition.
	To models.TaskStatus
	// Revision is the task's revision count at the time of the event.
	Revision int
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
