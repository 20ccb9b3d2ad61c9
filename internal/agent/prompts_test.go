package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/devteam/pkg/models"
)

func TestRenderRespond(t *testing.T) {
	t.Run("without history", func(t *testing.T) {
		p := RenderRespond("Backend Developer", nil, "build the API")
		assert.False(t, strings.Contains(p, "Conversation so far"))
		assert.Contains(t, p, "build the API")
		assert.Contains(t, p, "Backend Developer")
	})

	t.Run("with history", func(t *testing.T) {
		history := []models.Message{
			{Sequence: 1, SenderRole: models.RoleCoordinator, RecipientRole: models.RoleBackend, Kind: models.MessageKindRequest, Content: "v1 please"},
			{Sequence: 2, SenderRole: models.RoleBackend, RecipientRole: models.RoleCoordinator, Kind: models.MessageKindResponse, Content: "here is v1"},
		}
		p := RenderRespond("Backend Developer", history, "revise")
		assert.Contains(t, p, "[1] coordinator -> backend (request):\nv1 please")
		assert.Contains(t, p, "[2] backend -> coordinator (response):\nhere is v1")
		assert.Less(t, strings.Index(p, "v1 please"), strings.Index(p, "Current directive"))
	})
}

func TestRenderEvaluate(t *testing.T) {
	p := RenderEvaluate("make a form", "<form/>")
	assert.Contains(t, p, "make a form")
	assert.Contains(t, p, "<form/>")
	assert.Contains(t, p, "VERDICT: ACCEPT or REVISE")
}

func TestRevisionDirective(t *testing.T) {
	d := RevisionDirective("make a form", "add labels")
	assert.Contains(t, d, "make a form")
	assert.Contains(t, d, "add labels")

	d = RevisionDirective("make a form", "  ")
	assert.Contains(t, d, "No specific feedback")
}

func TestIntegrationDirective(t *testing.T) {
	d := IntegrationDirective("todo app", []IntegrationPart{
		{Role: models.RoleFrontend, Description: "UI", Result: "<ul/>"},
		{Role: models.RoleBackend, Description: "API", Result: "GET /todos"},
	})
	assert.Contains(t, d, "todo app")
	assert.Contains(t, d, "--- frontend: UI ---\n<ul/>")
	assert.Contains(t, d, "--- backend: API ---\nGET /todos")
}
