package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Valid(t *testing.T) {
	t.Parallel()
	for _, r := range []Role{RoleViewer, RoleOperator, RoleAdmin} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("root").Valid())
	assert.False(t, Role("").Valid())
}

func TestIdentity_Can(t *testing.T) {
	t.Parallel()
	tests := []struct {
		roles []Role
		read  bool
		sub   bool
		maint bool
	}{
		{nil, false, false, false},
		{[]Role{RoleViewer}, true, false, false},
		{[]Role{RoleOperator}, true, true, false},
		{[]Role{RoleAdmin}, true, true, true},
		{[]Role{RoleViewer, RoleOperator}, true, true, false},
	}
	for _, tt := range tests {
		id := &Identity{Subject: "x", Roles: tt.roles}
		assert.Equal(t, tt.read, id.Can(ActionRead), "%v read", tt.roles)
		assert.Equal(t, tt.sub, id.Can(ActionSubmit), "%v submit", tt.roles)
		assert.Equal(t, tt.maint, id.Can(ActionMaintain), "%v maintain", tt.roles)
	}
}

func TestIdentity_NilSafe(t *testing.T) {
	t.Parallel()
	var id *Identity
	assert.False(t, id.Can(ActionRead))
	assert.False(t, id.HasRole(RoleAdmin))
	assert.True(t, (&Identity{Roles: []Role{RoleAdmin}}).HasRole(RoleAdmin))
}
