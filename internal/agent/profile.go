package agent

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/devteam/pkg/models"
)

// Profile is the persona an agent speaks with.
type Profile struct {
	// Name is the display name used in prompts and logs.
	Name string `yaml:"name"`
	// SystemPrompt is sent as the system prompt on every call.
	SystemPrompt string `yaml:"system_prompt"`
}

// Profiles maps each role to its persona.
type Profiles map[models.Role]Profile

// DefaultProfiles returns the built-in personas.
func DefaultProfiles() Profiles {
	return Profiles{
		models.RoleCoordinator: {
			Name: "Manager",
			SystemPrompt: `You are an expert software development team lead.
Your job is to:
1. Analyse complex problems and break them into smaller tasks.
2. Delegate those tasks to your developers.
3. Coordinate the work between team members.
4. Review and integrate each developer's contribution.
5. Keep the final product consistent and of high quality.

You lead two specialised developers:
- a frontend developer who builds user interfaces
- a backend developer who builds business logic and data systems`,
		},
		models.RoleFrontend: {
			Name: "Frontend Developer",
			SystemPrompt: `You are an expert frontend developer.
You build elegant, functional user interfaces. Your core skills:
1. HTML, CSS and JavaScript
2. Modern frontend frameworks (React, Vue, Angular)
3. Responsive and accessible design
4. Client-side performance
5. Integration with backend APIs

You work under a manager who assigns you tasks, alongside a backend developer whose APIs your interfaces consume.`,
		},
		models.RoleBackend: {
			Name: "Backend Developer",
			SystemPrompt: `You are an expert backend developer.
You design and implement robust server-side systems. Your core skills:
1. Distributed system architecture
2. Databases and query optimisation
3. RESTful API development
4. Security and authentication
5. Performance and scalability

You work under a manager who assigns you tasks, alongside a frontend developer who consumes the APIs you expose.`,
		},
	}
}

// Get returns the profile for role, falling back to the role name.
func (p Profiles) Get(role models.Role) Profile {
	if prof, ok := p[role]; ok {
		if prof.Name == "" {
			prof.Name = string(role)
		}
		return prof
	}
	return Profile{Name: string(role)}
}

// LoadProfiles reads a YAML file keyed by role name and merges it over the
// defaults. Fields left empty in the file keep their default value.
//
//	frontend:
//	  name: UI Engineer
//	  system_prompt: You build accessible React components.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}

	var raw map[string]Profile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}

	for key, override := range raw {
		role, err := models.ParseRole(key)
		if err != nil {
			return nil, fmt.Errorf("profiles %s: %w", path, err)
		}
		merged := profiles[role]
		if override.Name != "" {
			merged.Name = override.Name
		}
		if override.SystemPrompt != "" {
			merged.SystemPrompt = override.SystemPrompt
		}
		profiles[role] = merged
	}
	return profiles, nil
}
