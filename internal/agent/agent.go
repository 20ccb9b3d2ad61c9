// Package agent provides the role-bound team members: a coordinator that
// decomposes and evaluates, and workers that produce results.
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ShayCichocki/devteam/internal/llm"
	"github.com/ShayCichocki/devteam/internal/telemetry"
	"github.com/ShayCichocki/devteam/pkg/models"
)

var (
	// ErrGenerationTimeout is returned when a call exceeds its time budget.
	ErrGenerationTimeout = llm.ErrGenerationTimeout
	// ErrEmptyGeneration is returned when the model produced no usable text.
	ErrEmptyGeneration = errors.New("empty generation")
)

// Agent is a role-bound participant that answers directives.
type Agent interface {
	// Role returns the fixed role of the agent.
	Role() models.Role
	// Respond produces text for directive given the prior conversation.
	// Implementations must not modify history.
	Respond(ctx context.Context, history []models.Message, directive string) (string, error)
}

// Coordinator is the agent that also judges submitted results.
type Coordinator interface {
	Agent
	Evaluate(ctx context.Context, result, directive string) (models.Evaluation, error)
}

// Settings are shared by every agent built on a Generator.
type Settings struct {
	// Options are passed to every Generate call. System is overwritten per role.
	Options llm.Options
	// Timeout bounds each call. Zero means no per-call bound.
	Timeout time.Duration
	// MaxContextMessages caps how much history is rendered into a prompt.
	// Zero renders all of it.
	MaxContextMessages int
	// Logger receives call diagnostics.
	Logger *zap.Logger
}

// base is the shared implementation behind both agent variants.
type base struct {
	role     models.Role
	profile  Profile
	gen      llm.Generator
	settings Settings
	logger   *zap.Logger
}

func newBase(role models.Role, profile Profile, gen llm.Generator, s Settings) base {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if profile.Name == "" {
		profile.Name = string(role)
	}
	return base{
		role:     role,
		profile:  profile,
		gen:      gen,
		settings: s,
		logger:   logger.With(zap.String("role", string(role))),
	}
}

// Role returns the agent's role.
func (b *base) Role() models.Role {
	return b.role
}

// Name returns the display name from the agent's profile.
func (b *base) Name() string {
	return b.profile.Name
}

// Respond renders the conversation and directive into a prompt and generates an answer.
func (b *base) Respond(ctx context.Context, history []models.Message, directive string) (string, error) {
	if n := b.settings.MaxContextMessages; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	prompt := RenderRespond(b.profile.Name, history, directive)
	return b.generate(ctx, "respond", prompt)
}

var reasoningPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)

// CleanOutput strips reasoning blocks that some local models emit and trims
// surrounding whitespace.
func CleanOutput(s string) string {
	s = strings.TrimSpace(reasoningPattern.ReplaceAllString(s, ""))
	// A leading unterminated block means the model ran out of tokens while
	// thinking. Elsewhere the tag is part of the answer.
	if strings.HasPrefix(strings.ToLower(s), "<think>") {
		return ""
	}
	return s
}

type generation struct {
	text string
	err  error
}

// generate runs one bounded call to the language model.
func (b *base) generate(ctx context.Context, op, prompt string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "agent."+op, trace.WithAttributes(
		telemetry.AttrRole.String(string(b.role)),
		telemetry.AttrOperation.String(op),
	))
	defer span.End()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if b.settings.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.settings.Timeout)
	}
	defer cancel()

	opts := b.settings.Options
	opts.System = b.profile.SystemPrompt

	start := time.Now()
	done := make(chan generation, 1)
	go func() {
		text, err := b.gen.Generate(callCtx, prompt, opts)
		done <- generation{text: text, err: err}
	}()

	var out generation
	select {
	case out = <-done:
	case <-callCtx.Done():
		out.err = callCtx.Err()
	}

	text, err := b.finish(ctx, callCtx, out)
	elapsed := time.Since(start)
	telemetry.RecordAgentCall(ctx, string(b.role), op, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Debug("agent call failed", zap.String("operation", op), zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", err
	}
	b.logger.Debug("agent call finished", zap.String("operation", op), zap.Duration("elapsed", elapsed), zap.Int("chars", len(text)))
	return text, nil
}

// finish maps the raw generation outcome onto the agent error taxonomy.
func (b *base) finish(ctx, callCtx context.Context, out generation) (string, error) {
	if out.err != nil {
		// The caller gave up; that is not a timeout of this call.
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", b.role, ctx.Err())
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(out.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%s: %w after %s", b.role, ErrGenerationTimeout, b.settings.Timeout)
		}
		return "", fmt.Errorf("%s: %w", b.role, llm.Classify(out.err))
	}

	text := CleanOutput(out.text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", b.role, ErrEmptyGeneration)
	}
	return text, nil
}

// WorkerAgent produces results for frontend or backend subtasks.
type WorkerAgent struct {
	base
}

// NewWorker creates a worker for role.
func NewWorker(role models.Role, profile Profile, gen llm.Generator, s Settings) (*WorkerAgent, error) {
	if !role.IsWorker() {
		return nil, fmt.Errorf("new worker: %w: %q is not a worker role", models.ErrUnknownRole, role)
	}
	return &WorkerAgent{base: newBase(role, profile, gen, s)}, nil
}

// CoordinatorAgent decomposes requests and evaluates submitted results.
type CoordinatorAgent struct {
	base
}

// NewCoordinator creates the coordinator.
func NewCoordinator(profile Profile, gen llm.Generator, s Settings) *CoordinatorAgent {
	return &CoordinatorAgent{base: newBase(models.RoleCoordinator, profile, gen, s)}
}

// Evaluate judges result against the directive that produced it. A review
// with no recognisable verdict is accepted, with the review text kept as feedback.
func (c *CoordinatorAgent) Evaluate(ctx context.Context, result, directive string) (models.Evaluation, error) {
	text, err := c.generate(ctx, "evaluate", RenderEvaluate(directive, result))
	if err != nil {
		return models.Evaluation{}, err
	}

	eval, ok := ParseEvaluation(text)
	if !ok {
		c.logger.Warn("evaluation had no verdict, accepting", zap.Int("chars", len(text)))
		eval.Verdict = models.VerdictAccept
	}
	return eval, nil
}
