package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		roles    []enums.Role
		resource Resource
		action   Action
		want     bool
	}{
		{"customer reads orders", []enums.Role{enums.RoleCustomer}, ResourceOrders, ActionRead, true},
		{"customer cannot read all", []enums.Role{enums.RoleCustomer}, ResourceOrders, ActionReadAll, false},
		{"customer cannot transition", []enums.Role{enums.RoleCustomer}, ResourceOrders, ActionTransition, false},
		{"customer cannot write admin notes", []enums.Role{enums.RoleCustomer}, ResourceOrders, ActionAdminNotes, false},
		{"staff transitions", []enums.Role{enums.RoleStaff}, ResourceOrders, ActionTransition, true},
		{"staff cannot adjust stock", []enums.Role{enums.RoleStaff}, ResourceInventory, ActionAdjust, false},
		{"manager adjusts stock", []enums.Role{enums.RoleManager}, ResourceInventory, ActionAdjust, true},
		{"any role grants", []enums.Role{enums.RoleCustomer, enums.RoleStaff}, ResourceOrders, ActionAdminNotes, true},
		{"no roles", nil, ResourceOrders, ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allowed(tt.roles, tt.resource, tt.action))
		})
	}
}

func TestIsStaff(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, IsStaff(p, []enums.Role{enums.RoleAdmin}))
	assert.False(t, IsStaff(p, []enums.Role{enums.RoleCustomer}))
	assert.False(t, IsStaff(nil, []enums.Role{enums.RoleAdmin}))
}

func TestNilPolicyDeniesEverything(t *testing.T) {
	var p *Policy
	assert.False(t, p.Allowed([]enums.Role{enums.RoleAdmin}, ResourceOrders, ActionRead))
}

func TestNewPolicyMergesGrants(t *testing.T) {
	p := NewPolicy([]Grant{
		{Role: enums.RoleStaff, Resource: ResourceInventory, Actions: []Action{ActionRead}},
		{Role: enums.RoleStaff, Resource: ResourceInventory, Actions: []Action{ActionAdjust}},
	})
	assert.True(t, p.Allowed([]enums.Role{enums.RoleStaff}, ResourceInventory, ActionRead))
	assert.True(t, p.Allowed([]enums.Role{enums.RoleStaff}, ResourceInventory, ActionAdjust))
}

func TestSubjectActorID(t *testing.T) {
	assert.Nil(t, System().ActorID())
	assert.True(t, System().IsSystem())

	id := uuid.New()
	subject := Subject{UserID: id, Roles: []enums.Role{enums.RoleStaff}}
	if assert.NotNil(t, subject.ActorID()) {
		assert.Equal(t, id, *subject.ActorID())
	}
}
