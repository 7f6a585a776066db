package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string

	// Superusers see every non-archived project without a membership row.
	IsSuperuser bool

	// Named permissions. CanChangeTask gates full task edits,
	// CanDeleteTask gates archiving/unarchiving.
	CanChangeTask bool
	CanDeleteTask bool

	CreatedAt time.Time
}
