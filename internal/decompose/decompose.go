// Package decompose turns a user request into role-assigned subtasks.
package decompose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/devteam/internal/agent"
	"github.com/ShayCichocki/devteam/pkg/models"
)

// ErrDecompositionParse is returned by ParseResponse when the coordinator's
// output is not a usable plan. Decompose never returns it; it falls back to a
// single subtask instead.
var ErrDecompositionParse = errors.New("decomposition parse error")

// decomposedTask is the JSON structure returned by the coordinator for a single subtask.
type decomposedTask struct {
	Description  string `json:"description"`
	AssigneeRole string `json:"assignee_role"`
}

// Plan is the outcome of one decomposition.
type Plan struct {
	// Subtasks are in the order the coordinator listed them. Never empty.
	Subtasks []models.Subtask
	// Degraded is true when the fallback single subtask was used.
	Degraded bool
	// Directive is the text the coordinator was asked to answer.
	Directive string
	// Raw is the coordinator's answer. Empty when generation itself failed.
	Raw string
	// Err is why the plan is degraded, if it is.
	Err error
}

// Config configures a Decomposer.
type Config struct {
	// DefaultRole receives the whole request when decomposition fails.
	DefaultRole models.Role
	// Retry bounds retries of the coordinator call.
	Retry agent.RetryPolicy
	// Logger receives the degraded-decomposition warning.
	Logger *zap.Logger
}

// Decomposer breaks requests into subtasks using the coordinator.
type Decomposer struct {
	coordinator agent.Agent
	roles       []models.Role
	cfg         Config
	logger      *zap.Logger
}

// New creates a Decomposer. roles are the worker roles a subtask may name.
func New(coordinator agent.Agent, roles []models.Role, cfg Config) (*Decomposer, error) {
	if len(roles) == 0 {
		return nil, errors.New("decompose: no assignable roles")
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = roles[len(roles)-1]
	}
	if !containsRole(roles, cfg.DefaultRole) {
		return nil, fmt.Errorf("decompose: default role %q is not assignable", cfg.DefaultRole)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{
		coordinator: coordinator,
		roles:       append([]models.Role(nil), roles...),
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Directive returns the decomposition directive for request.
func (d *Decomposer) Directive(request string) string {
	names := make([]string, len(d.roles))
	for i, r := range d.roles {
		names[i] = "- " + string(r)
	}
	roleList := make([]string, len(d.roles))
	for i, r := range d.roles {
		roleList[i] = string(r)
	}
	return fmt.Sprintf(decompositionPrompt, request, strings.Join(names, "\n"), strings.Join(roleList, "|"))
}

// Decompose asks the coordinator for a plan. Any failure other than context
// cancellation yields a degraded plan with one subtask carrying the whole
// request, assigned to the default role.
func (d *Decomposer) Decompose(ctx context.Context, request string, history []models.Message) (*Plan, error) {
	directive := d.Directive(request)

	raw, err := agent.Retry(ctx, d.cfg.Retry, d.logger, "decompose", func(ctx context.Context) (string, error) {
		return d.coordinator.Respond(ctx, history, directive)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("decompose: %w", ctx.Err())
		}
		return d.fallback(request, directive, "", err), nil
	}

	subtasks, err := ParseResponse(raw, d.roles)
	if err != nil {
		return d.fallback(request, directive, raw, err), nil
	}

	d.logger.Info("request decomposed", zap.Int("subtasks", len(subtasks)))
	return &Plan{Subtasks: subtasks, Directive: directive, Raw: raw}, nil
}

func (d *Decomposer) fallback(request, directive, raw string, cause error) *Plan {
	d.logger.Warn("decomposition degraded to a single subtask",
		zap.String("assignee_role", string(d.cfg.DefaultRole)),
		zap.Error(cause))
	return &Plan{
		Subtasks:  []models.Subtask{{Description: request, AssigneeRole: d.cfg.DefaultRole}},
		Degraded:  true,
		Directive: directive,
		Raw:       raw,
		Err:       cause,
	}
}

// ParseResponse parses the coordinator's JSON answer into subtasks. Every
// entry must have a non-blank description and name one of roles.
func ParseResponse(response string, roles []models.Role) ([]models.Subtask, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		responsePreview := response
		if len(responsePreview) > 500 {
			responsePreview = responsePreview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("%w: no JSON array found in response (got %d chars): %q", ErrDecompositionParse, len(response), responsePreview)
	}
	jsonStr := response[jsonStart : jsonEnd+1]

	var decomposed []decomposedTask
	if err := json.Unmarshal([]byte(jsonStr), &decomposed); err != nil {
		return nil, fmt.Errorf("%w: unmarshal JSON: %v", ErrDecompositionParse, err)
	}

	if len(decomposed) == 0 {
		return nil, fmt.Errorf("%w: empty subtask list returned", ErrDecompositionParse)
	}

	subtasks := make([]models.Subtask, len(decomposed))
	for i, dt := range decomposed {
		desc := strings.TrimSpace(dt.Description)
		if desc == "" {
			return nil, fmt.Errorf("%w: subtask %d has no description", ErrDecompositionParse, i+1)
		}
		role, err := models.ParseRole(dt.AssigneeRole)
		if err != nil || !containsRole(roles, role) {
			return nil, fmt.Errorf("%w: subtask %d names unassignable role %q", ErrDecompositionParse, i+1, dt.AssigneeRole)
		}
		subtasks[i] = models.Subtask{Description: desc, AssigneeRole: role}
	}
	return subtasks, nil
}

func containsRole(roles []models.Role, r models.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}
