package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	// ErrRevisionLimitExceeded is the cause of a task whose last permitted
	// revision was still rejected.
	ErrRevisionLimitExceeded = errors.New("revision limit exceeded")
	// ErrCanceled is the cause of a task stopped by context cancellation.
	ErrCanceled = errors.New("task canceled")
	// ErrIncompleteSubtasks is returned when the root task is evaluated while
	// a child is not DONE.
	ErrIncompleteSubtasks = errors.New("subtasks incomplete")
)

// TaskError reports a task that ended FAILED.
type TaskError struct {
	TaskID   string
	Role     models.Role
	Feedback string
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.TaskID, e.Role, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// TeamFailure is the error of an unsuccessful solve. It names the first
// task that failed and the last feedback that task received.
type TeamFailure struct {
	TaskID      string
	Role        models.Role
	Description string
	Feedback    string
	Cause       error
}

func (e *TeamFailure) Error() string {
	msg := fmt.Sprintf("team failure: task %s (%s) failed: %v", e.TaskID, e.Role, e.Cause)
	if e.Feedback != "" {
		msg += "; last feedback: " + e.Feedback
	}
	return msg
}

func (e *TeamFailure) Unwrap() error {
	return e.Cause
}

// failureFrom builds a TeamFailure from a failed task.
func failureFrom(t *models.Task, cause error) *TeamFailure {
	var te *TaskError
	if errors.As(cause, &te) {
		cause = te.Err
	}
	return &TeamFailure{
		TaskID:      t.ID,
		Role:        t.AssigneeRole,
		Description: t.Description,
		Feedback:    t.Feedback,
		Cause:       cause,
	}
}
