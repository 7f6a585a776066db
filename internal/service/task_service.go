package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/chepyr/go-minitask/internal/db"
	"github.com/chepyr/go-minitask/internal/models"
	"github.com/google/uuid"
)

// Policy carries deployment-level validation switches: a deployment may
// insist that every task has a due date and/or an assignee.
type Policy struct {
	RequireDueDate  bool
	RequireAssignee bool
}

// unrestrictedFields names the task fields a caller without the change_task
// permission may still change. Every other field they submit is treated as
// a disabled input and silently dropped, not rejected.
var unrestrictedFields = map[string]bool{
	"version": true,
	"status":  true,
}

// TaskInput is the full field set for creating or editing a task. Updates
// are whole-record: the caller submits every field, and for restricted
// callers everything outside unrestrictedFields is ignored.
type TaskInput struct {
	ProjectID   uuid.UUID
	Title       string
	Description string
	DueDate     *time.Time
	Status      models.TaskStatus
	Priority    int
	AssigneeID  *uuid.UUID
	Tags        []string
}

// TaskService orchestrates task and note mutations: visibility first, then
// permissions, then validation, with atomicity delegated to the versioned
// repository update.
type TaskService struct {
	Tasks    *db.TaskRepository
	Projects *db.ProjectRepository
	Notes    *db.NoteRepository
	Policy   Policy

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewTaskService(tasks *db.TaskRepository, projects *db.ProjectRepository, notes *db.NoteRepository, policy Policy) *TaskService {
	return &TaskService{Tasks: tasks, Projects: projects, Notes: notes, Policy: policy}
}

func (s *TaskService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func canEdit(user *models.User) bool {
	return user.IsSuperuser || user.CanChangeTask
}

func canArchive(user *models.User) bool {
	return user.IsSuperuser || user.CanDeleteTask
}

// ListTasks returns the tasks visible to the user narrowed by the filter.
func (s *TaskService) ListTasks(ctx context.Context, user *models.User, filter db.TaskFilter) ([]*models.Task, error) {
	return s.Tasks.List(ctx, user, filter, s.now())
}

// ListProjects returns the projects visible to the user.
func (s *TaskService) ListProjects(ctx context.Context, user *models.User) ([]*models.Project, error) {
	return s.Projects.ListVisible(ctx, user, s.now())
}

// GetTask loads one visible task.
func (s *TaskService) GetTask(ctx context.Context, user *models.User, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.Tasks.GetVisible(ctx, taskID, user, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotVisible
	}
	return task, err
}

// CreateTask creates a task in a project the user can see. For regular
// users that means holding an active membership; superusers may target any
// non-archived project. The task starts at version 0 with the caller as
// created_by.
func (s *TaskService) CreateTask(ctx context.Context, user *models.User, input TaskInput) (*models.Task, error) {
	now := s.now()

	visible, err := s.Projects.IsVisible(ctx, input.ProjectID, user, now)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotVisible
	}

	if input.Status == "" {
		input.Status = models.TaskStatusOpen
	}
	if err := s.validate(input); err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:          uuid.New(),
		ProjectID:   input.ProjectID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		DueDate:     input.DueDate,
		Status:      input.Status,
		Priority:    input.Priority,
		AssigneeID:  input.AssigneeID,
		CreatedBy:   user.ID,
		Tags:        input.Tags,
		Version:     0,
		CreatedAt:   now,
	}
	if err := s.Tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies a whole-record edit under optimistic concurrency
// control. Users with the change_task permission may change every field;
// anyone else has the input filtered down to unrestrictedFields before the
// update is built, so a full payload from a restricted caller changes only
// the status. Returns db.ErrVersionConflict when expectedVersion is stale.
func (s *TaskService) UpdateTask(ctx context.Context, user *models.User, taskID uuid.UUID, expectedVersion int, input TaskInput) (*models.Task, error) {
	current, err := s.GetTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if canEdit(user) {
		if input.ProjectID == uuid.Nil {
			input.ProjectID = current.ProjectID
		}
		if input.Status == "" {
			input.Status = current.Status
		}
		if err := s.validate(input); err != nil {
			return nil, err
		}
		if input.ProjectID != current.ProjectID {
			visible, err := s.Projects.IsVisible(ctx, input.ProjectID, user, s.now())
			if err != nil {
				return nil, err
			}
			if !visible {
				v := &validator{}
				v.add("project", "not available")
				return nil, v.err()
			}
		}
		updated.ProjectID = input.ProjectID
		updated.Title = strings.TrimSpace(input.Title)
		updated.Description = input.Description
		updated.DueDate = input.DueDate
		updated.Status = input.Status
		updated.Priority = input.Priority
		updated.AssigneeID = input.AssigneeID
		updated.Tags = input.Tags
	} else {
		applyUnrestricted(&updated, input)
		if !updated.Status.Valid() {
			v := &validator{}
			v.add("status", "invalid value")
			return nil, v.err()
		}
	}

	if err := s.applyVersioned(ctx, &updated, expectedVersion); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ArchiveTask flips the archived flag through the same versioned update
// path as a full edit, touching only (version, is_archived). It is gated by
// the delete_task permission, which is distinct from change_task.
func (s *TaskService) ArchiveTask(ctx context.Context, user *models.User, taskID uuid.UUID, expectedVersion int, isArchived bool) (*models.Task, error) {
	current, err := s.GetTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if !canArchive(user) {
		return nil, ErrPermission
	}

	updated := *current
	updated.IsArchived = isArchived
	if err := s.applyVersioned(ctx, &updated, expectedVersion); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *TaskService) applyVersioned(ctx context.Context, task *models.Task, expectedVersion int) error {
	err := s.Tasks.UpdateVersioned(ctx, task, expectedVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotVisible
	}
	return err
}

// applyUnrestricted copies onto dst only the fields a restricted caller may
// change; the rest of the input behaves like a disabled form control.
func applyUnrestricted(dst *models.Task, input TaskInput) {
	if unrestrictedFields["status"] && input.Status != "" {
		dst.Status = input.Status
	}
}

// CreateNote attaches a note to a visible task. The body must not be blank.
func (s *TaskService) CreateNote(ctx context.Context, user *models.User, taskID uuid.UUID, body string) (*models.Note, error) {
	task, err := s.GetTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		v := &validator{}
		v.add("body", "required")
		return nil, v.err()
	}

	authorID := user.ID
	note := &models.Note{
		ID:        uuid.New(),
		TaskID:    task.ID,
		Body:      body,
		AuthorID:  &authorID,
		CreatedAt: s.now(),
	}
	if err := s.Notes.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNote replaces a note's body. Visibility of the note's task is the
// only gate; there is no note-level permission.
func (s *TaskService) UpdateNote(ctx context.Context, user *models.User, noteID uuid.UUID, body string) (*models.Note, error) {
	note, err := s.Notes.GetVisible(ctx, noteID, user, s.now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotVisible
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		v := &validator{}
		v.add("body", "required")
		return nil, v.err()
	}

	note.Body = body
	if err := s.Notes.Update(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// ListNotes returns the notes of a visible task in creation order.
func (s *TaskService) ListNotes(ctx context.Context, user *models.User, taskID uuid.UUID) ([]*models.Note, error) {
	task, err := s.GetTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	return s.Notes.ListByTask(ctx, task.ID)
}

func (s *TaskService) validate(input TaskInput) error {
	v := &validator{}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		v.add("title", "required")
	} else if len(title) > 500 {
		v.add("title", "too long (max 500 chars)")
	}
	if !input.Status.Valid() {
		v.add("status", "invalid value")
	}
	if input.Priority < models.PriorityLowest || input.Priority > models.PriorityHighest {
		v.add("priority", "out of range")
	}
	if s.Policy.RequireDueDate && input.DueDate == nil {
		v.add("due_date", "required")
	}
	if s.Policy.RequireAssignee && input.AssigneeID == nil {
		v.add("assignee", "required")
	}
	return v.err()
}
