package authz

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Subject is the authenticated caller of a service operation. The zero value
// is the system itself (webhooks, cron sweeps).
type Subject struct {
	UserID uuid.UUID
	Roles  []enums.Role
}

// System returns the subject used for system-initiated changes.
func System() Subject {
	return Subject{}
}

// IsSystem reports whether no user is attached.
func (s Subject) IsSystem() bool {
	return s.UserID == uuid.Nil
}

// ActorID returns the user id for audit columns, nil for the system.
func (s Subject) ActorID() *uuid.UUID {
	if s.IsSystem() {
		return nil
	}
	id := s.UserID
	return &id
}
