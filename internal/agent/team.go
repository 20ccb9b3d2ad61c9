package agent

import (
	"fmt"

	"github.com/ShayCichocki/devteam/internal/llm"
	"github.com/ShayCichocki/devteam/pkg/models"
)

// Team is the fixed role registry of one process. It is built once at
// startup and never changes, so lookups need no locking.
type Team struct {
	coordinator Coordinator
	members     map[models.Role]Agent
	workerRoles []models.Role
}

// NewTeam registers a coordinator and at least one worker. Each role may
// appear only once.
func NewTeam(coordinator Coordinator, workers ...Agent) (*Team, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("new team: coordinator is required")
	}
	if coordinator.Role() != models.RoleCoordinator {
		return nil, fmt.Errorf("new team: coordinator has role %q", coordinator.Role())
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("new team: at least one worker is required")
	}

	t := &Team{
		coordinator: coordinator,
		members:     map[models.Role]Agent{models.RoleCoordinator: coordinator},
	}
	for _, w := range workers {
		role := w.Role()
		if !role.IsWorker() {
			return nil, fmt.Errorf("new team: %w: %q cannot be a worker", models.ErrUnknownRole, role)
		}
		if _, dup := t.members[role]; dup {
			return nil, fmt.Errorf("new team: duplicate role %q", role)
		}
		t.members[role] = w
		t.workerRoles = append(t.workerRoles, role)
	}
	return t, nil
}

// Build creates the standard coordinator, frontend and backend team on one generator.
func Build(gen llm.Generator, profiles Profiles, s Settings) (*Team, error) {
	if profiles == nil {
		profiles = DefaultProfiles()
	}

	coordinator := NewCoordinator(profiles.Get(models.RoleCoordinator), gen, s)
	workers := make([]Agent, 0, len(models.WorkerRoles()))
	for _, role := range models.WorkerRoles() {
		w, err := NewWorker(role, profiles.Get(role), gen, s)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return NewTeam(coordinator, workers...)
}

// Coordinator returns the team's coordinator.
func (t *Team) Coordinator() Coordinator {
	return t.coordinator
}

// Agent returns the member holding role.
func (t *Team) Agent(role models.Role) (Agent, error) {
	a, ok := t.members[role]
	if !ok {
		return nil, fmt.Errorf("%w: no team member for %q", models.ErrUnknownRole, role)
	}
	return a, nil
}

// Has reports whether role is staffed.
func (t *Team) Has(role models.Role) bool {
	_, ok := t.members[role]
	return ok
}

// WorkerRoles returns the staffed worker roles in registration order.
func (t *Team) WorkerRoles() []models.Role {
	return append([]models.Role(nil), t.workerRoles...)
}

// Roles returns every staffed role, coordinator first.
func (t *Team) Roles() []models.Role {
	return append([]models.Role{models.RoleCoordinator}, t.workerRoles...)
}
