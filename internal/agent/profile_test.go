package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/devteam/pkg/models"
)

func TestDefaultProfiles(t *testing.T) {
	p := DefaultProfiles()
	for _, role := range []models.Role{models.RoleCoordinator, models.RoleFrontend, models.RoleBackend} {
		assert.NotEmpty(t, p.Get(role).Name, role)
		assert.NotEmpty(t, p.Get(role).SystemPrompt, role)
	}
	assert.Equal(t, "designer", p.Get("designer").Name)
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `
frontend_dev:
  name: UI Engineer
  system_prompt: You build accessible React components.
backend:
  system_prompt: You write Go services.
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := LoadProfiles(path)
	require.NoError(t, err)

	assert.Equal(t, "UI Engineer", p.Get(models.RoleFrontend).Name)
	assert.Equal(t, "You build accessible React components.", p.Get(models.RoleFrontend).SystemPrompt)
	assert.Equal(t, "Backend Developer", p.Get(models.RoleBackend).Name)
	assert.Equal(t, "You write Go services.", p.Get(models.RoleBackend).SystemPrompt)
	assert.Equal(t, DefaultProfiles()[models.RoleCoordinator], p.Get(models.RoleCoordinator))
}

func TestLoadProfiles_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfiles(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("designer:\n  name: X\n"), 0644))
	_, err = LoadProfiles(bad)
	assert.ErrorIs(t, err, models.ErrUnknownRole)

	p, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Len(t, p, 3)
}
