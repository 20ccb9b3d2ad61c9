package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/devteam/internal/llm"
	"github.com/ShayCichocki/devteam/pkg/models"
)

// scripted returns its outputs in order, repeating the last one.
type scripted struct {
	outputs []string
	errs    []error
	calls   atomic.Int32
	prompts []string
	systems []string
}

func (s *scripted) Generate(_ context.Context, prompt string, opts llm.Options) (string, error) {
	i := int(s.calls.Add(1)) - 1
	s.prompts = append(s.prompts, prompt)
	s.systems = append(s.systems, opts.System)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if len(s.outputs) == 0 {
		return "", nil
	}
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	return s.outputs[i], nil
}

func TestWorker_RespondRendersHistoryAndSystemPrompt(t *testing.T) {
	gen := &scripted{outputs: []string{"<html>login</html>"}}
	profile := Profile{Name: "Frontend Developer", SystemPrompt: "you build UIs"}
	w, err := NewWorker(models.RoleFrontend, profile, gen, Settings{})
	require.NoError(t, err)

	history := []models.Message{{
		Sequence:      1,
		SenderRole:    models.RoleCoordinator,
		RecipientRole: models.RoleFrontend,
		Kind:          models.MessageKindRequest,
		Content:       "first directive",
	}}
	before := append([]models.Message(nil), history...)

	out, err := w.Respond(context.Background(), history, "build the login form")
	require.NoError(t, err)
	assert.Equal(t, "<html>login</html>", out)
	assert.Equal(t, models.RoleFrontend, w.Role())

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "first directive")
	assert.Contains(t, gen.prompts[0], "build the login form")
	assert.Contains(t, gen.prompts[0], "Frontend Developer")
	assert.Equal(t, "you build UIs", gen.systems[0])
	assert.Equal(t, before, history, "history must not be modified")
}

func TestWorker_RespondTrimsContext(t *testing.T) {
	gen := &scripted{outputs: []string{"ok"}}
	w, err := NewWorker(models.RoleBackend, Profile{}, gen, Settings{MaxContextMessages: 1})
	require.NoError(t, err)

	history := []models.Message{
		{Sequence: 1, Content: "old message"},
		{Sequence: 2, Content: "recent message"},
	}
	_, err = w.Respond(context.Background(), history, "go")
	require.NoError(t, err)
	assert.NotContains(t, gen.prompts[0], "old message")
	assert.Contains(t, gen.prompts[0], "recent message")
}

func TestNewWorker_RejectsCoordinatorRole(t *testing.T) {
	_, err := NewWorker(models.RoleCoordinator, Profile{}, &scripted{}, Settings{})
	assert.ErrorIs(t, err, models.ErrUnknownRole)
}

func TestRespond_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		gen     llm.Generator
		timeout time.Duration
		wantErr error
	}{
		{
			name:    "blank output is empty generation",
			gen:     &scripted{outputs: []string{"   \n"}},
			wantErr: ErrEmptyGeneration,
		},
		{
			name:    "only reasoning is empty generation",
			gen:     &scripted{outputs: []string{"<think>hmm</think>"}},
			wantErr: ErrEmptyGeneration,
		},
		{
			name:    "connection errors are classified",
			gen:     &scripted{errs: []error{&net404{}}},
			wantErr: llm.ErrConnection,
		},
		{
			name: "slow generator times out",
			gen: llm.GeneratorFunc(func(ctx context.Context, _ string, _ llm.Options) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}),
			timeout: 20 * time.Millisecond,
			wantErr: ErrGenerationTimeout,
		},
		{
			name: "generator ignoring context still times out",
			gen: llm.GeneratorFunc(func(context.Context, string, llm.Options) (string, error) {
				time.Sleep(200 * time.Millisecond)
				return "late", nil
			}),
			timeout: 20 * time.Millisecond,
			wantErr: ErrGenerationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWorker(models.RoleBackend, Profile{}, tt.gen, Settings{Timeout: tt.timeout})
			require.NoError(t, err)

			_, err = w.Respond(context.Background(), nil, "do it")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsRetryable(err))
		})
	}
}

// net404 is a connection failure as seen by llm.Classify.
type net404 struct{}

func (*net404) Error() string   { return "dial tcp: connection refused" }
func (*net404) Timeout() bool   { return false }
func (*net404) Temporary() bool { return false }

func TestRespond_CallerCancellationIsNotATimeout(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, _ string, _ llm.Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	w, err := NewWorker(models.RoleFrontend, Profile{}, gen, Settings{Timeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = w.Respond(ctx, nil, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrGenerationTimeout))
	assert.False(t, IsRetryable(err))
}

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain  ", "plain"},
		{"<think>\nplan\n</think>\nanswer", "answer"},
		{"<THINK>x</THINK>a<think>y</think>b", "ab"},
		{"<think>never closed", ""},
		{"<think>a</think>\n  <THINK>still going", ""},
		{"answer<think>literal tag", "answer<think>literal tag"},
		{"Use a custom element:\n```html\n<think>ponder</think-x>\n```", "Use a custom element:\n```html\n<think>ponder</think-x>\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanOutput(tt.in))
		})
	}
}

func TestCoordinator_Evaluate(t *testing.T) {
	tests := []struct {
		name         string
		output       string
		wantVerdict  models.Verdict
		wantFeedback string
	}{
		{"accept", "VERDICT: ACCEPT\nFEEDBACK: looks good", models.VerdictAccept, "looks good"},
		{"revise", "VERDICT: REVISE\nFEEDBACK: add input validation", models.VerdictRevise, "add input validation"},
		{"no verdict is accepted", "The work is thorough.", models.VerdictAccept, "The work is thorough."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scripted{outputs: []string{tt.output}}
			c := NewCoordinator(DefaultProfiles().Get(models.RoleCoordinator), gen, Settings{})

			eval, err := c.Evaluate(context.Background(), "result text", "original directive")
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerdict, eval.Verdict)
			assert.Equal(t, tt.wantFeedback, eval.Feedback)

			assert.Contains(t, gen.prompts[0], "result text")
			assert.Contains(t, gen.prompts[0], "original directive")
			assert.True(t, strings.HasPrefix(gen.systems[0], "You are an expert software development team lead"))
		})
	}
}

func TestCoordinator_EvaluateEmpty(t *testing.T) {
	c := NewCoordinator(Profile{}, &scripted{outputs: []string{""}}, Settings{})
	_, err := c.Evaluate(context.Background(), "r", "d")
	assert.ErrorIs(t, err, ErrEmptyGeneration)
}
