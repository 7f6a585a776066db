package models

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task priorities range from PriorityLowest to PriorityHighest.
const (
	PriorityLowest  = -2
	PriorityHighest = 2
)

type Task struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Title       string
	Description string
	DueDate     *time.Time
	Status      TaskStatus
	Priority    int
	AssigneeID  *uuid.UUID
	CreatedBy   uuid.UUID
	Tags        []string
	IsArchived  bool

	// Version is the optimistic-concurrency counter. It starts at 0 and is
	// incremented by exactly 1 on every successful update; writers must
	// present the version they read.
	Version int

	CreatedAt time.Time
}
