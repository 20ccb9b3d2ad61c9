package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/devteam/internal/agent"
	"github.com/ShayCichocki/devteam/internal/conversation"
	"github.com/ShayCichocki/devteam/internal/decompose"
	"github.com/ShayCichocki/devteam/internal/telemetry"
	"github.com/ShayCichocki/devteam/pkg/models"
)

// Report describes a finished solve, successful or not.
type Report struct {
	// SolveID identifies the solve.
	SolveID string
	// Root is the top-level task. Its Result is the final answer.
	Root models.Task
	// Subtasks are the children of Root in decomposition order.
	Subtasks []models.Task
	// Degraded is true when decomposition fell back to a single subtask.
	Degraded bool
	// Conversations holds every conversation of the solve, all archived.
	Conversations *conversation.Store
}

// Result returns the final answer, empty for a failed solve.
func (r *Report) Result() string {
	return r.Root.Result
}

// Orchestrator coordinates the workflow from request to answer.
// It wires together: decomposer -> subtask loops -> root evaluation.
type Orchestrator struct {
	team       *agent.Team
	cfg        Config
	decomposer *decompose.Decomposer
	emitter    *EventEmitter
	recorder   Recorder
	archiver   conversation.Archiver
	logger     *zap.Logger
}

// New creates an Orchestrator for team.
func New(team *agent.Team, cfg Config, opts ...Option) (*Orchestrator, error) {
	if team == nil {
		return nil, errors.New("new orchestrator: team is required")
	}
	if err := cfg.Validate(team); err != nil {
		return nil, fmt.Errorf("new orchestrator: %w", err)
	}

	var o orchestratorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	d, err := decompose.New(team.Coordinator(), team.WorkerRoles(), decompose.Config{
		DefaultRole: cfg.DefaultRole,
		Retry:       cfg.Retry,
		Logger:      o.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new orchestrator: %w", err)
	}

	return &Orchestrator{
		team:       team,
		cfg:        cfg,
		decomposer: d,
		emitter:    o.emitter,
		recorder:   o.recorder,
		archiver:   o.archiver,
		logger:     o.logger,
	}, nil
}

// Solve runs request through the team and returns the aggregated answer.
// A failed solve returns a *TeamFailure.
func (o *Orchestrator) Solve(ctx context.Context, request string) (string, error) {
	report, err := o.Run(ctx, request)
	if err != nil {
		return "", err
	}
	return report.Result(), nil
}

// solve is the mutable state of one Run.
type solve struct {
	id       string
	request  string
	store    *conversation.Store
	root     *models.Task
	children []*models.Task
	degraded bool

	mu          sync.Mutex
	firstFailed *models.Task
	firstErr    error
}

// markFailed records the first child to fail. Later failures are ignored.
func (s *solve) markFailed(t *models.Task, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstFailed == nil {
		s.firstFailed = t
		s.firstErr = err
	}
}

// Run solves request and returns the full task tree. The report is returned
// even when the solve fails. A solve still running after Config.SolveTimeout
// fails with context.DeadlineExceeded in its cause chain.
func (o *Orchestrator) Run(ctx context.Context, request string) (*Report, error) {
	if strings.TrimSpace(request) == "" {
		return nil, errors.New("solve: request is empty")
	}
	if o.cfg.SolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.SolveTimeout)
		defer cancel()
	}

	ctx, span := telemetry.Tracer().Start(ctx, "devteam.solve")
	defer span.End()

	var storeOpts []conversation.Option
	if o.archiver != nil {
		storeOpts = append(storeOpts, conversation.WithArchiver(o.archiver))
	}
	s := &solve{
		id:      uuid.NewString(),
		request: request,
		store:   conversation.NewStore(storeOpts...),
	}
	log := o.logger.With(zap.String("solve_id", s.id))
	log.Info("solve started", zap.Int("request_chars", len(request)))
	o.emitter.Emit(Event{Type: EventSolveStarted, SolveID: s.id, Message: request})
	o.recordStart(ctx, s)

	err := o.run(ctx, s, log)
	report := o.report(s)
	o.recordFinish(ctx, s, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("solve failed", zap.Error(err))
		o.emitter.Emit(Event{Type: EventSolveFailed, SolveID: s.id, TaskID: s.root.ID, Error: err})
		return report, err
	}

	log.Info("solve done", zap.Int("subtasks", len(s.children)), zap.Bool("degraded", s.degraded))
	o.emitter.Emit(Event{Type: EventSolveDone, SolveID: s.id, TaskID: s.root.ID})
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, s *solve, log *zap.Logger) error {
	coordinatorLoop := NewLoop(o.team, s.store, o.cfg.Retry, s.id, o.emitter, o.recorder, log)

	root := models.NewTask(uuid.NewString(), s.request, "", o.cfg.MaxRevisions)
	root.ConversationID = s.store.Create(root.ID, models.RoleCoordinator)
	s.root = root
	o.created(ctx, s, root)
	if err := root.Assign(models.RoleCoordinator); err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	if err := coordinatorLoop.transition(root, models.TaskStatusInProgress); err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}

	// Decompose once, recording the exchange in the root conversation.
	history, err := s.store.Messages(root.ConversationID)
	if err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	plan, err := o.decomposer.Decompose(ctx, s.request, history)
	if err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	s.degraded = plan.Degraded
	directiveMsg, err := coordinatorLoop.append(root, models.RoleCoordinator, models.RoleCoordinator, models.MessageKindRequest, "", plan.Directive)
	if err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	if plan.Raw != "" {
		if _, err := coordinatorLoop.append(root, models.RoleCoordinator, models.RoleCoordinator, models.MessageKindResponse, directiveMsg.ID, plan.Raw); err != nil {
			return o.failRoot(ctx, coordinatorLoop, s, err)
		}
	}
	o.emitter.Emit(Event{
		Type:    EventDecomposed,
		SolveID: s.id,
		TaskID:  root.ID,
		Message: fmt.Sprintf("%d subtasks (degraded: %t)", len(plan.Subtasks), plan.Degraded),
	})

	for _, st := range plan.Subtasks {
		child := models.NewTask(uuid.NewString(), st.Description, root.ID, o.cfg.MaxRevisions)
		child.ConversationID = s.store.Create(child.ID, models.RoleCoordinator, st.AssigneeRole)
		if err := child.Assign(st.AssigneeRole); err != nil {
			return o.failRoot(ctx, coordinatorLoop, s, err)
		}
		root.ChildIDs = append(root.ChildIDs, child.ID)
		s.children = append(s.children, child)
		o.created(ctx, s, child)
	}

	o.runChildren(ctx, s, coordinatorLoop)

	if s.firstFailed != nil {
		failure := failureFrom(s.firstFailed, s.firstErr)
		coordinatorLoop.fail(ctx, root, failure)
		return failure
	}

	// Every child is DONE; submit and evaluate the aggregate.
	if err := coordinatorLoop.transition(root, models.TaskStatusSubmitted); err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	if err := coordinatorLoop.transition(root, models.TaskStatusEvaluating); err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	for _, child := range s.children {
		if child.Status != models.TaskStatusDone {
			return o.failRoot(ctx, coordinatorLoop, s, fmt.Errorf("%w: task %s is %s", ErrIncompleteSubtasks, child.ID, child.Status))
		}
	}

	result := Aggregate(s.children)
	if o.cfg.Integrate {
		result, err = o.integrate(ctx, s, coordinatorLoop, log)
		if err != nil {
			return o.failRoot(ctx, coordinatorLoop, s, err)
		}
	}

	root.Result = result
	if err := coordinatorLoop.transition(root, models.TaskStatusAccepted); err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	if err := coordinatorLoop.transition(root, models.TaskStatusDone); err != nil {
		return o.failRoot(ctx, coordinatorLoop, s, err)
	}
	coordinatorLoop.finish(ctx, root)
	return nil
}

// runChildren runs every child loop and returns once all are terminal.
func (o *Orchestrator) runChildren(ctx context.Context, s *solve, loop *Loop) {
	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.MaxParallel > 0 {
		g.SetLimit(o.cfg.MaxParallel)
	}

	for _, child := range s.children {
		g.Go(func() error {
			err := loop.Run(gctx, child)
			if err == nil {
				return nil
			}
			// Mark before returning so the failure that cancels the
			// siblings is recorded ahead of their cancellations.
			s.markFailed(child, err)
			if o.cfg.FailFast {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

// integrate asks the coordinator to merge the accepted results.
func (o *Orchestrator) integrate(ctx context.Context, s *solve, loop *Loop, log *zap.Logger) (string, error) {
	parts := make([]agent.IntegrationPart, len(s.children))
	for i, c := range s.children {
		parts[i] = agent.IntegrationPart{Role: c.AssigneeRole, Description: c.Description, Result: c.Result}
	}
	directive := agent.IntegrationDirective(s.request, parts)

	history, err := s.store.Messages(s.root.ConversationID)
	if err != nil {
		return "", err
	}
	coordinator := o.team.Coordinator()
	answer, err := agent.Retry(ctx, o.cfg.Retry, log, "integrate", func(ctx context.Context) (string, error) {
		return coordinator.Respond(ctx, history, directive)
	})
	if err != nil {
		return "", fmt.Errorf("integrate results: %w", err)
	}

	msg, err := loop.append(s.root, models.RoleCoordinator, models.RoleCoordinator, models.MessageKindRequest, "", directive)
	if err != nil {
		return "", err
	}
	if _, err := loop.append(s.root, models.RoleCoordinator, models.RoleCoordinator, models.MessageKindResponse, msg.ID, answer); err != nil {
		return "", err
	}
	return answer, nil
}

// failRoot fails the root task itself and returns a TeamFailure naming it.
func (o *Orchestrator) failRoot(ctx context.Context, loop *Loop, s *solve, cause error) error {
	err := loop.fail(ctx, s.root, cause)
	return failureFrom(s.root, err)
}

func (o *Orchestrator) created(ctx context.Context, s *solve, t *models.Task) {
	o.emitter.Emit(Event{
		Type:     EventTaskCreated,
		SolveID:  s.id,
		TaskID:   t.ID,
		ParentID: t.ParentID,
		Role:     t.AssigneeRole,
		Message:  t.Description,
	})
	if o.recorder != nil {
		if err := o.recorder.SaveTask(ctx, s.id, t.Clone()); err != nil {
			o.logger.Warn("record task", zap.String("task_id", t.ID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) recordStart(ctx context.Context, s *solve) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.StartSolve(ctx, s.id, s.request); err != nil {
		o.logger.Warn("record solve", zap.String("solve_id", s.id), zap.Error(err))
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, s *solve, failure error) {
	if o.recorder == nil {
		return
	}
	var result string
	if s.root != nil {
		result = s.root.Result
	}
	if err := o.recorder.FinishSolve(context.WithoutCancel(ctx), s.id, result, failure); err != nil {
		o.logger.Warn("record solve", zap.String("solve_id", s.id), zap.Error(err))
	}
}

func (o *Orchestrator) report(s *solve) *Report {
	r := &Report{
		SolveID:       s.id,
		Degraded:      s.degraded,
		Conversations: s.store,
	}
	if s.root != nil {
		r.Root = s.root.Clone()
	}
	for _, c := range s.children {
		r.Subtasks = append(r.Subtasks, c.Clone())
	}
	return r
}

// Aggregate concatenates the results of tasks in order, each under a
// heading naming its role and description.
func Aggregate(tasks []*models.Task) string {
	var b strings.Builder
	for i, t := range tasks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### [%s] %s\n\n%s", t.AssigneeRole, t.Description, strings.TrimSpace(t.Result))
	}
	return b.String()
}
