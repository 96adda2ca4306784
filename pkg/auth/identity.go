// Package auth authenticates operators of the contentflow admin surface.
//
// Tokens are HS256 JWTs signed with a shared secret. A validated token
// yields an [Identity] carrying the subject and its roles; roles map to
// the coarse actions the admin API exposes (read dashboards, submit
// workflows, run maintenance).
//
// Failed validations are reported through an optional hook so callers can
// feed them into abuse tracking without this package knowing about it.
package auth

import (
	"context"
	"slices"
)

// Role names a set of allowed admin actions.
type Role string

const (
	// RoleViewer may read workflows, alerts, abuse records and quota.
	RoleViewer Role = "viewer"

	// RoleOperator may additionally submit workflows.
	RoleOperator Role = "operator"

	// RoleAdmin may do everything, including maintenance sweeps.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	default:
		return false
	}
}

// Action is an operation on the admin surface.
type Action string

const (
	ActionRead     Action = "read"
	ActionSubmit   Action = "submit"
	ActionMaintain Action = "maintain"
)

var roleActions = map[Role][]Action{
	RoleViewer:   {ActionRead},
	RoleOperator: {ActionRead, ActionSubmit},
	RoleAdmin:    {ActionRead, ActionSubmit, ActionMaintain},
}

// Identity is the authenticated caller behind a request.
type Identity struct {
	Subject string
	Roles   []Role
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role Role) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Roles, role)
}

// Can reports whether any of the identity's roles grants action.
func (i *Identity) Can(action Action) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if slices.Contains(roleActions[r], action) {
			return true
		}
	}
	return false
}

// TokenValidator verifies a bearer token and returns the identity it
// represents. Implementations must be safe for concurrent use.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}
