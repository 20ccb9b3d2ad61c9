package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/devteam/internal/agent"
	"github.com/ShayCichocki/devteam/internal/conversation"
	"github.com/ShayCichocki/devteam/pkg/models"
)

// Config contains the team policy of an Orchestrator.
type Config struct {
	// MaxRevisions bounds the revisions of every task.
	MaxRevisions int
	// DefaultRole receives the whole request when decomposition fails.
	DefaultRole models.Role
	// MaxParallel limits concurrent subtask loops. Zero means no limit.
	MaxParallel int
	// FailFast cancels running siblings when one subtask fails.
	FailFast bool
	// Integrate asks the coordinator to merge accepted results into one answer.
	Integrate bool
	// Retry bounds retries of every agent call.
	Retry agent.RetryPolicy
	// SolveTimeout bounds a whole solve. Zero means no bound.
	SolveTimeout time.Duration
}

// DefaultConfig returns the stock team policy.
func DefaultConfig() Config {
	return Config{
		MaxRevisions: 2,
		DefaultRole:  models.RoleBackend,
		MaxParallel:  2,
		FailFast:     true,
		Retry:        agent.DefaultRetryPolicy(),
		SolveTimeout: 5 * time.Minute,
	}
}

// Validate checks the policy against team.
func (c Config) Validate(team *agent.Team) error {
	if c.MaxRevisions < 0 {
		return fmt.Errorf("max revisions must be >= 0, got %d", c.MaxRevisions)
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max parallel must be >= 0, got %d", c.MaxParallel)
	}
	if c.SolveTimeout < 0 {
		return fmt.Errorf("solve timeout must be >= 0, got %s", c.SolveTimeout)
	}
	if !c.DefaultRole.IsWorker() || !team.Has(c.DefaultRole) {
		return fmt.Errorf("default role %q is not a worker of the team", c.DefaultRole)
	}
	return nil
}

// Recorder persists the task tree of each solve. Recording failures are
// logged and never fail the solve.
type Recorder interface {
	StartSolve(ctx context.Context, solveID, request string) error
	SaveTask(ctx context.Context, solveID string, task models.Task) error
	FinishSolve(ctx context.Context, solveID, result string, failure error) error
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	logger   *zap.Logger
	emitter  *EventEmitter
	recorder Recorder
	archiver conversation.Archiver
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEventEmitter publishes solve events to e.
func WithEventEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithRecorder persists solves and tasks through r.
func WithRecorder(r Recorder) Option {
	return func(o *orchestratorOptions) { o.recorder = r }
}

// WithArchiver persists every conversation when it is archived.
func WithArchiver(a conversation.Archiver) Option {
	return func(o *orchestratorOptions) { o.archiver = a }
}
