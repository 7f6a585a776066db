package models

import (
	"time"

	"github.com/google/uuid"
)

type Note struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	Body      string
	AuthorID  *uuid.UUID
	CreatedAt time.Time
}
