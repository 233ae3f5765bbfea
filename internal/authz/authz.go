// Package authz answers "may a subject holding these roles perform this action
// on this resource". The policy is built once at start-up and injected; there is
// no package-level mutable table.
package authz

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type Resource string

const (
	ResourceOrders    Resource = "orders"
	ResourceInventory Resource = "inventory"
	ResourcePayments  Resource = "payments"
)

type Action string

const (
	ActionRead        Action = "read"
	ActionReadAll     Action = "read_all"
	ActionCreate      Action = "create"
	ActionCancelOwn   Action = "cancel_own"
	ActionTransition  Action = "transition"
	ActionUpdateNotes Action = "update_notes"
	ActionAdminNotes  Action = "admin_notes"
	ActionAdjust      Action = "adjust"
	ActionRetry       Action = "retry"
)

// Authorizer is the decision surface consumed by services and middleware.
type Authorizer interface {
	Allowed(roles []enums.Role, resource Resource, action Action) bool
}

// Grant is a single (role, resource, actions) entry in a static definition.
type Grant struct {
	Role     enums.Role
	Resource Resource
	Actions  []Action
}

type permission struct {
	resource Resource
	action   Action
}

// Policy is an immutable role -> permission set.
type Policy struct {
	grants map[enums.Role]map[permission]struct{}
}

// NewPolicy compiles grants into a lookup table. Later grants add to earlier ones.
func NewPolicy(grants []Grant) *Policy {
	p := &Policy{grants: make(map[enums.Role]map[permission]struct{})}
	for _, g := range grants {
		set, ok := p.grants[g.Role]
		if !ok {
			set = make(map[permission]struct{})
			p.grants[g.Role] = set
		}
		for _, action := range g.Actions {
			set[permission{resource: g.Resource, action: action}] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether any of roles grants action on resource.
func (p *Policy) Allowed(roles []enums.Role, resource Resource, action Action) bool {
	if p == nil {
		return false
	}
	key := permission{resource: resource, action: action}
	for _, role := range roles {
		if _, ok := p.grants[role][key]; ok {
			return true
		}
	}
	return false
}

// IsStaff reports whether roles can act on any order, the boundary between
// customer and back-office access.
func IsStaff(a Authorizer, roles []enums.Role) bool {
	return a != nil && a.Allowed(roles, ResourceOrders, ActionReadAll)
}

var staffOrderActions = []Action{ActionRead, ActionReadAll, ActionTransition, ActionUpdateNotes, ActionAdminNotes}

// DefaultPolicy is the storefront's static role definition.
func DefaultPolicy() *Policy {
	return NewPolicy([]Grant{
		{Role: enums.RoleCustomer, Resource: ResourceOrders, Actions: []Action{ActionRead, ActionCreate, ActionCancelOwn, ActionUpdateNotes}},
		{Role: enums.RoleCustomer, Resource: ResourcePayments, Actions: []Action{ActionRetry}},

		{Role: enums.RoleStaff, Resource: ResourceOrders, Actions: staffOrderActions},
		{Role: enums.RoleStaff, Resource: ResourceInventory, Actions: []Action{ActionRead}},

		{Role: enums.RoleManager, Resource: ResourceOrders, Actions: staffOrderActions},
		{Role: enums.RoleManager, Resource: ResourceInventory, Actions: []Action{ActionRead, ActionAdjust}},
		{Role: enums.RoleManager, Resource: ResourcePayments, Actions: []Action{ActionRead}},

		{Role: enums.RoleAdmin, Resource: ResourceOrders, Actions: staffOrderActions},
		{Role: enums.RoleAdmin, Resource: ResourceInventory, Actions: []Action{ActionRead, ActionAdjust}},
		{Role: enums.RoleAdmin, Resource: ResourcePayments, Actions: []Action{ActionRead, ActionRetry}},
	})
}
