package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role       Role
		wantValid  bool
		wantWorker bool
	}{
		{RoleCoordinator, true, false},
		{RoleFrontend, true, true},
		{RoleBackend, true, true},
		{Role(""), false, false},
		{Role("designer"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.wantValid, tt.role.Valid())
			assert.Equal(t, tt.wantWorker, tt.role.IsWorker())
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"frontend", RoleFrontend, false},
		{"  Frontend_Dev ", RoleFrontend, false},
		{"UI", RoleFrontend, false},
		{"backend-dev", RoleBackend, false},
		{"api", RoleBackend, false},
		{"manager", RoleCoordinator, false},
		{"designer", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRole)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
