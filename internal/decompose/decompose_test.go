package decompose

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/devteam/internal/agent"
	"github.com/ShayCichocki/devteam/pkg/models"
)

var workers = []models.Role{models.RoleFrontend, models.RoleBackend}

// scriptedAgent answers Respond calls from a fixed list of replies.
type scriptedAgent struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	seen    []string
}

type reply struct {
	text string
	err  error
}

func (a *scriptedAgent) Role() models.Role { return models.RoleCoordinator }

func (a *scriptedAgent) Respond(ctx context.Context, _ []models.Message, directive string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.seen = append(a.seen, directive)
	r := a.replies[min(a.calls, len(a.replies)-1)]
	a.calls++
	return r.text, r.err
}

func noWait() agent.RetryPolicy {
	return agent.RetryPolicy{MaxAttempts: 3}
}

func newDecomposer(t *testing.T, a agent.Agent) *Decomposer {
	t.Helper()
	d, err := New(a, workers, Config{DefaultRole: models.RoleBackend, Retry: noWait()})
	require.NoError(t, err)
	return d
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []models.Subtask
		wantErr  bool
	}{
		{
			name: "two roles",
			response: `[
				{"description": "Build the login form", "assignee_role": "frontend"},
				{"description": "Build the auth API", "assignee_role": "backend"}
			]`,
			want: []models.Subtask{
				{Description: "Build the login form", AssigneeRole: models.RoleFrontend},
				{Description: "Build the auth API", AssigneeRole: models.RoleBackend},
			},
		},
		{
			name:     "code fence and prose",
			response: "Here is the plan:\n```json\n[{\"description\": \"Add /health\", \"assignee_role\": \"backend\"}]\n```\nDone.",
			want:     []models.Subtask{{Description: "Add /health", AssigneeRole: models.RoleBackend}},
		},
		{
			name:     "role alias",
			response: `[{"description": "Style the page", "assignee_role": "frontend_dev"}]`,
			want:     []models.Subtask{{Description: "Style the page", AssigneeRole: models.RoleFrontend}},
		},
		{
			name:     "description trimmed",
			response: `[{"description": "  Add caching \n", "assignee_role": "backend"}]`,
			want:     []models.Subtask{{Description: "Add caching", AssigneeRole: models.RoleBackend}},
		},
		{name: "no array", response: "I would split this into two parts.", wantErr: true},
		{name: "invalid json", response: `[{"description": "x", }]`, wantErr: true},
		{name: "empty array", response: `[]`, wantErr: true},
		{name: "blank description", response: `[{"description": " ", "assignee_role": "backend"}]`, wantErr: true},
		{name: "unknown role", response: `[{"description": "Deploy", "assignee_role": "devops"}]`, wantErr: true},
		{name: "coordinator is not assignable", response: `[{"description": "Plan", "assignee_role": "coordinator"}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.response, workers)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDecompositionParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponse_RestrictedRoles(t *testing.T) {
	_, err := ParseResponse(`[{"description": "Style", "assignee_role": "frontend"}]`, []models.Role{models.RoleBackend})
	assert.ErrorIs(t, err, ErrDecompositionParse)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&scriptedAgent{}, nil, Config{})
	assert.Error(t, err)

	_, err = New(&scriptedAgent{}, []models.Role{models.RoleBackend}, Config{DefaultRole: models.RoleFrontend})
	assert.Error(t, err)

	d, err := New(&scriptedAgent{}, workers, Config{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleBackend, d.cfg.DefaultRole)
}

func TestDirective(t *testing.T) {
	d := newDecomposer(t, &scriptedAgent{})
	directive := d.Directive("Build a todo app")

	assert.Contains(t, directive, "Build a todo app")
	assert.Contains(t, directive, "- frontend")
	assert.Contains(t, directive, "- backend")
	assert.Contains(t, directive, `"assignee_role": "frontend|backend"`)
}

func TestDecompose_Plan(t *testing.T) {
	a := &scriptedAgent{replies: []reply{{text: `[
		{"description": "Render the todo list", "assignee_role": "frontend"},
		{"description": "Persist todos", "assignee_role": "backend"}
	]`}}}
	d := newDecomposer(t, a)

	plan, err := d.Decompose(context.Background(), "Build a todo app", nil)
	require.NoError(t, err)

	assert.False(t, plan.Degraded)
	assert.NoError(t, plan.Err)
	require.Len(t, plan.Subtasks, 2)
	assert.Equal(t, models.RoleFrontend, plan.Subtasks[0].AssigneeRole)
	assert.Equal(t, models.RoleBackend, plan.Subtasks[1].AssigneeRole)
	assert.Equal(t, d.Directive("Build a todo app"), plan.Directive)
	assert.Equal(t, []string{plan.Directive}, a.seen)
}

func TestDecompose_FallbackOnUnparseable(t *testing.T) {
	a := &scriptedAgent{replies: []reply{{text: "Sure! The backend should add an endpoint."}}}
	d := newDecomposer(t, a)

	plan, err := d.Decompose(context.Background(), "Add a /health endpoint", nil)
	require.NoError(t, err)

	assert.True(t, plan.Degraded)
	assert.ErrorIs(t, plan.Err, ErrDecompositionParse)
	assert.Equal(t, "Sure! The backend should add an endpoint.", plan.Raw)
	assert.Equal(t, []models.Subtask{{Description: "Add a /health endpoint", AssigneeRole: models.RoleBackend}}, plan.Subtasks)
	assert.Equal(t, 1, a.calls)
}

func TestDecompose_RetriesTransientFailure(t *testing.T) {
	a := &scriptedAgent{replies: []reply{
		{err: agent.ErrGenerationTimeout},
		{text: `[{"description": "Add /health", "assignee_role": "backend"}]`},
	}}
	d := newDecomposer(t, a)

	plan, err := d.Decompose(context.Background(), "Add a /health endpoint", nil)
	require.NoError(t, err)

	assert.False(t, plan.Degraded)
	assert.Equal(t, 2, a.calls)
}

func TestDecompose_FallbackOnGenerationFailure(t *testing.T) {
	boom := errors.New("model not found")
	a := &scriptedAgent{replies: []reply{{err: boom}}}
	d := newDecomposer(t, a)

	plan, err := d.Decompose(context.Background(), "Add a /health endpoint", nil)
	require.NoError(t, err)

	assert.True(t, plan.Degraded)
	assert.ErrorIs(t, plan.Err, boom)
	assert.Empty(t, plan.Raw)
	assert.Equal(t, 1, a.calls)
	require.Len(t, plan.Subtasks, 1)
	assert.Equal(t, models.RoleBackend, plan.Subtasks[0].AssigneeRole)
}

func TestDecompose_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDecomposer(t, &scriptedAgent{replies: []reply{{text: "[]"}}})
	plan, err := d.Decompose(ctx, "anything", nil)

	assert.Nil(t, plan)
	assert.ErrorIs(t, err, context.Canceled)
}
