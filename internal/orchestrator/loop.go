package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/devteam/internal/agent"
	"github.com/ShayCichocki/devteam/internal/conversation"
	"github.com/ShayCichocki/devteam/internal/telemetry"
	"github.com/ShayCichocki/devteam/pkg/models"
)

// Loop drives one task through delegation, evaluation and revision.
// A Loop is bound to one solve's conversation store and may run many tasks
// concurrently, each task owned by exactly one Run call.
type Loop struct {
	team     *agent.Team
	store    *conversation.Store
	retry    agent.RetryPolicy
	solveID  string
	emitter  *EventEmitter
	recorder Recorder
	logger   *zap.Logger
}

// NewLoop creates a Loop over store. emitter and recorder may be nil.
func NewLoop(team *agent.Team, store *conversation.Store, retry agent.RetryPolicy, solveID string, emitter *EventEmitter, recorder Recorder, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		team:     team,
		store:    store,
		retry:    retry,
		solveID:  solveID,
		emitter:  emitter,
		recorder: recorder,
		logger:   logger,
	}
}

// Run takes an ASSIGNED task with an open conversation to DONE or FAILED.
// It returns nil when the task is DONE and a *TaskError otherwise.
func (l *Loop) Run(ctx context.Context, task *models.Task) error {
	if task.Status != models.TaskStatusAssigned {
		return fmt.Errorf("run task %s: %w: status is %s, want %s", task.ID, models.ErrInvalidTransition, task.Status, models.TaskStatusAssigned)
	}
	log := l.logger.With(zap.String("task_id", task.ID), zap.String("role", string(task.AssigneeRole)))

	worker, err := l.team.Agent(task.AssigneeRole)
	if err != nil {
		return l.fail(ctx, task, err)
	}
	coordinator := l.team.Coordinator()

	directive := task.Description
	history, err := l.store.Messages(task.ConversationID)
	if err != nil {
		return l.fail(ctx, task, err)
	}
	directiveMsg, err := l.append(task, models.RoleCoordinator, task.AssigneeRole, models.MessageKindRequest, "", directive)
	if err != nil {
		return l.fail(ctx, task, err)
	}
	if err := l.transition(task, models.TaskStatusInProgress); err != nil {
		return l.fail(ctx, task, err)
	}

	for {
		if ctx.Err() != nil {
			return l.fail(ctx, task, ctx.Err())
		}

		log.Debug("delegating", zap.Int("revision", task.RevisionCount))
		result, err := agent.Retry(ctx, l.retry, log, "respond", func(ctx context.Context) (string, error) {
			return worker.Respond(ctx, history, directive)
		})
		if err != nil {
			return l.fail(ctx, task, err)
		}

		responseMsg, err := l.append(task, task.AssigneeRole, models.RoleCoordinator, models.MessageKindResponse, directiveMsg.ID, result)
		if err != nil {
			return l.fail(ctx, task, err)
		}
		if err := l.transition(task, models.TaskStatusSubmitted); err != nil {
			return l.fail(ctx, task, err)
		}
		if err := l.transition(task, models.TaskStatusEvaluating); err != nil {
			return l.fail(ctx, task, err)
		}

		eval, err := agent.Retry(ctx, l.retry, log, "evaluate", func(ctx context.Context) (models.Evaluation, error) {
			return coordinator.Evaluate(ctx, result, task.Description)
		})
		if err != nil {
			return l.fail(ctx, task, err)
		}
		if ctx.Err() != nil {
			return l.fail(ctx, task, ctx.Err())
		}

		evalMsg, err := l.append(task, models.RoleCoordinator, task.AssigneeRole, models.MessageKindEvaluation, responseMsg.ID, eval.String())
		if err != nil {
			return l.fail(ctx, task, err)
		}
		task.Feedback = eval.Feedback
		log.Info("evaluated", zap.String("verdict", string(eval.Verdict)), zap.Int("revision", task.RevisionCount))

		if eval.Verdict == models.VerdictAccept {
			task.Result = result
			if err := l.transition(task, models.TaskStatusAccepted); err != nil {
				return l.fail(ctx, task, err)
			}
			if err := l.transition(task, models.TaskStatusDone); err != nil {
				return l.fail(ctx, task, err)
			}
			l.finish(ctx, task)
			return nil
		}

		if task.RevisionCount >= task.MaxRevisions {
			return l.fail(ctx, task, fmt.Errorf("%w: %d revisions used", ErrRevisionLimitExceeded, task.RevisionCount))
		}
		if err := l.transition(task, models.TaskStatusRevisionRequested); err != nil {
			return l.fail(ctx, task, err)
		}
		task.RevisionCount++

		history, err = l.store.Messages(task.ConversationID)
		if err != nil {
			return l.fail(ctx, task, err)
		}
		directive = agent.RevisionDirective(task.Description, eval.Feedback)
		directiveMsg, err = l.append(task, models.RoleCoordinator, task.AssigneeRole, models.MessageKindRequest, evalMsg.ID, directive)
		if err != nil {
			return l.fail(ctx, task, err)
		}
		if err := l.transition(task, models.TaskStatusInProgress); err != nil {
			return l.fail(ctx, task, err)
		}
	}
}

func (l *Loop) append(task *models.Task, from, to models.Role, kind models.MessageKind, inReplyTo, content string) (models.Message, error) {
	msg, err := l.store.Append(task.ConversationID, models.Message{
		SenderRole:    from,
		RecipientRole: to,
		Kind:          kind,
		InReplyTo:     inReplyTo,
		Content:       content,
	})
	if err != nil {
		return msg, fmt.Errorf("append %s message: %w", kind, err)
	}
	l.logger.Debug("message",
		zap.String("task_id", task.ID),
		zap.String("kind", string(kind)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("sequence", msg.Sequence))
	l.emitter.Emit(Event{
		Type:     EventMessage,
		SolveID:  l.solveID,
		TaskID:   task.ID,
		ParentID: task.ParentID,
		Role:     from,
		Revision: task.RevisionCount,
		Message:  string(kind),
	})
	return msg, nil
}

func (l *Loop) transition(task *models.Task, next models.TaskStatus) error {
	prev := task.Status
	if err := task.Transition(next); err != nil {
		return err
	}
	l.emitter.Emit(Event{
		Type:     EventTaskTransition,
		SolveID:  l.solveID,
		TaskID:   task.ID,
		ParentID: task.ParentID,
		Role:     task.AssigneeRole,
		From:     prev,
		To:       next,
		Revision: task.RevisionCount,
	})
	return nil
}

// fail moves task to FAILED. Cancellation of ctx is reported as ErrCanceled
// whatever error surfaced it, with the context's error in the chain.
func (l *Loop) fail(ctx context.Context, task *models.Task, cause error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if !errors.Is(cause, ctxErr) {
			cause = fmt.Errorf("%w: %w", ctxErr, cause)
		}
		cause = fmt.Errorf("%w: %w", ErrCanceled, cause)
	} else if errors.Is(cause, context.Canceled) {
		cause = fmt.Errorf("%w: %w", ErrCanceled, cause)
	}

	prev := task.Status
	task.Result = ""
	task.Fail(cause)
	l.logger.Error("task failed",
		zap.String("task_id", task.ID),
		zap.String("role", string(task.AssigneeRole)),
		zap.String("status", string(prev)),
		zap.Int("revision", task.RevisionCount),
		zap.Error(cause))
	l.emitter.Emit(Event{
		Type:     EventTaskTransition,
		SolveID:  l.solveID,
		TaskID:   task.ID,
		ParentID: task.ParentID,
		Role:     task.AssigneeRole,
		From:     prev,
		To:       models.TaskStatusFailed,
		Revision: task.RevisionCount,
		Error:    cause,
	})
	l.finish(ctx, task)

	return &TaskError{
		TaskID:   task.ID,
		Role:     task.AssigneeRole,
		Feedback: task.Feedback,
		Err:      cause,
	}
}

// finish archives the task's conversation and records the terminal task.
// Both outlive cancellation of the solve.
func (l *Loop) finish(ctx context.Context, task *models.Task) {
	ctx = context.WithoutCancel(ctx)
	telemetry.RecordTaskOutcome(ctx, string(task.AssigneeRole), string(task.Status))

	if task.ConversationID != "" {
		if err := l.store.Archive(ctx, task.ConversationID); err != nil {
			l.logger.Warn("archive conversation", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	if l.recorder != nil {
		if err := l.recorder.SaveTask(ctx, l.solveID, task.Clone()); err != nil {
			l.logger.Warn("record task", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
}
