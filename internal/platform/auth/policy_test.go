package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanManageUser(t *testing.T) {
	testCases := []struct {
		actor   string
		target  string
		allowed bool
	}{
		{RoleSuperAdmin, RoleAdmin, true},
		{RoleSuperAdmin, RoleLibrarian, true},
		{RoleSuperAdmin, RoleUser, true},
		{RoleAdmin, RoleLibrarian, true},
		{RoleAdmin, RoleUser, true},
		{RoleAdmin, RoleAdmin, false},
		{RoleAdmin, RoleSuperAdmin, false},
		{RoleLibrarian, RoleUser, false},
		{RoleUser, RoleUser, false},
		{"", RoleUser, false},
		{RoleSuperAdmin, RoleSuperAdmin, false},
	}
	for _, tt := range testCases {
		assert.Equal(t, tt.allowed, CanManageUser(tt.actor, tt.target),
			"actor=%s target=%s", tt.actor, tt.target)
	}
}

func TestCanAssignRole(t *testing.T) {
	// an ADMIN may promote a USER to LIBRARIAN but not to ADMIN
	assert.True(t, CanAssignRole(RoleAdmin, RoleUser, RoleLibrarian))
	assert.False(t, CanAssignRole(RoleAdmin, RoleUser, RoleAdmin))
	assert.False(t, CanAssignRole(RoleAdmin, RoleUser, RoleSuperAdmin))
	assert.True(t, CanAssignRole(RoleSuperAdmin, RoleUser, RoleAdmin))
	assert.False(t, CanAssignRole(RoleLibrarian, RoleUser, RoleUser))
}

func TestCanViewUser(t *testing.T) {
	owner := "01HZX0000000000000000000AA"
	other := "01HZX0000000000000000000BB"

	assert.True(t, CanViewUser(Actor{UserID: owner, Role: RoleUser}, owner))
	assert.False(t, CanViewUser(Actor{UserID: other, Role: RoleUser}, owner))
	assert.True(t, CanViewUser(Actor{UserID: other, Role: RoleLibrarian}, owner))
	assert.True(t, CanViewUser(Actor{UserID: other, Role: RoleSuperAdmin}, owner))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleUser))
	assert.True(t, ValidRole(RoleSuperAdmin))
	assert.False(t, ValidRole("ROOT"))
	assert.False(t, ValidRole(""))
}
