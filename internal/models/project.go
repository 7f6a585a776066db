package models

import (
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID         uuid.UUID
	Title      string
	IsArchived bool
	CreatedBy  *uuid.UUID
	CreatedAt  time.Time
}

// ProjectMembership grants a user visibility on a project. A membership
// with ExpiresAt == nil never expires; one with ExpiresAt set is active
// through that day inclusive.
type ProjectMembership struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	UserID    uuid.UUID
	ExpiresAt *time.Time
}
