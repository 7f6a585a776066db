package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/go-minitask/internal/models"
	"github.com/google/uuid"
)

// ErrVersionConflict is returned when a versioned update loses the race:
// the row's version no longer matches the one the caller read.
var ErrVersionConflict = errors.New("task version conflict")

// TaskFilter holds user-supplied filter criteria for task listings. Nil or
// zero fields impose no constraint; all set fields compose conjunctively.
type TaskFilter struct {
	ProjectID     *uuid.UUID
	DueDateAfter  *time.Time // inclusive
	DueDateBefore *time.Time // inclusive
	Status        string     // "open", "in_progress", "done"; "!" prefix negates
	AssigneeID    *uuid.UUID
	Tags          []string // task must carry ALL listed tags
	IsArchived    bool     // false lists only live tasks, true ONLY archived ones
}

// defines methods for task db operations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetVisible(ctx context.Context, id uuid.UUID, user *models.User, now time.Time) (*models.Task, error)
	List(ctx context.Context, user *models.User, filter TaskFilter, now time.Time) ([]*models.Task, error)
	UpdateVersioned(ctx context.Context, task *models.Task, expectedVersion int) error
}

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `t.id, t.project_id, t.title, t.description, t.due_date, t.status,
	 t.priority, t.assignee_id, t.created_by, t.is_archived, t.version, t.created_at`

// Dashboard order: in-progress tasks first and done tasks last, then nearest
// due date with undated tasks at the end, then highest priority.
const dashboardOrder = ` ORDER BY
	 CASE t.status WHEN 'done' THEN 1 WHEN 'open' THEN 2 WHEN 'in_progress' THEN 3 END DESC,
	 CASE WHEN t.due_date IS NULL THEN 1 ELSE 0 END ASC,
	 t.due_date ASC,
	 t.priority DESC`

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO tasks (id, project_id, title, description, due_date, status,
	 priority, assignee_id, created_by, is_archived, version, created_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.ExecContext(
		ctx, query, task.ID, task.ProjectID, task.Title, task.Description,
		nullableDate(task.DueDate), task.Status, task.Priority, task.AssigneeID,
		task.CreatedBy, task.IsArchived, task.Version, task.CreatedAt)
	if err != nil {
		return err
	}
	if err := insertTags(ctx, tx, task.ID, task.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// GetVisible loads one task the user is allowed to see. A task that does not
// exist and a task the user may not see both come back as sql.ErrNoRows so
// callers cannot leak existence. Archived tasks are returned (the detail
// view shows them); tasks of archived projects never are.
func (r *TaskRepository) GetVisible(ctx context.Context, id uuid.UUID, user *models.User, now time.Time) (*models.Task, error) {
	query := `SELECT ` + taskColumns + `
	 FROM tasks t
	 JOIN projects p ON p.id = t.project_id
	 WHERE t.id = $1 AND NOT p.is_archived`
	args := []interface{}{id}

	if !user.IsSuperuser {
		query += " AND " + activeMembership("t.project_id", len(args)+1)
		args = append(args, user.ID, dateOf(now))
	}

	task, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	task.Tags, err = r.tagsFor(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// List returns the tasks visible to the user, narrowed by the filter, in
// dashboard order. No match is an empty slice, not an error.
func (r *TaskRepository) List(ctx context.Context, user *models.User, filter TaskFilter, now time.Time) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + `
	 FROM tasks t
	 JOIN projects p ON p.id = t.project_id
	 WHERE NOT p.is_archived`
	var args []interface{}

	if !user.IsSuperuser {
		query += " AND " + activeMembership("t.project_id", len(args)+1)
		args = append(args, user.ID, dateOf(now))
	}

	// The archived toggle is exclusive: the default view hides archived
	// tasks, the archived view hides everything else.
	if filter.IsArchived {
		query += " AND t.is_archived"
	} else {
		query += " AND NOT t.is_archived"
	}

	if filter.ProjectID != nil {
		query += fmt.Sprintf(" AND t.project_id = $%d", len(args)+1)
		args = append(args, *filter.ProjectID)
	}
	if filter.DueDateAfter != nil {
		query += fmt.Sprintf(" AND t.due_date >= $%d", len(args)+1)
		args = append(args, dateOf(*filter.DueDateAfter))
	}
	if filter.DueDateBefore != nil {
		query += fmt.Sprintf(" AND t.due_date <= $%d", len(args)+1)
		args = append(args, dateOf(*filter.DueDateBefore))
	}
	if filter.Status != "" {
		if negated := strings.TrimPrefix(filter.Status, "!"); negated != filter.Status {
			query += fmt.Sprintf(" AND t.status <> $%d", len(args)+1)
			args = append(args, negated)
		} else {
			query += fmt.Sprintf(" AND t.status = $%d", len(args)+1)
			args = append(args, filter.Status)
		}
	}
	if filter.AssigneeID != nil {
		query += fmt.Sprintf(" AND t.assignee_id = $%d", len(args)+1)
		args = append(args, *filter.AssigneeID)
	}
	for _, tag := range filter.Tags {
		query += fmt.Sprintf(
			" AND EXISTS (SELECT 1 FROM task_tags tt WHERE tt.task_id = t.id AND tt.tag = $%d)",
			len(args)+1)
		args = append(args, tag)
	}

	query += dashboardOrder

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if task.Tags, err = r.tagsFor(ctx, task.ID); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// UpdateVersioned writes the task back if and only if its stored version
// still equals expectedVersion, bumping the version by one in the same
// statement. Two writers racing with the same expected version cannot both
// pass the WHERE clause, so exactly one wins and the other gets
// ErrVersionConflict. Tags are replaced inside the same transaction.
func (r *TaskRepository) UpdateVersioned(ctx context.Context, task *models.Task, expectedVersion int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE tasks SET project_id = $1, title = $2, description = $3,
	 due_date = $4, status = $5, priority = $6, assignee_id = $7, is_archived = $8,
	 version = version + 1
	 WHERE id = $9 AND version = $10`

	res, err := tx.ExecContext(
		ctx, query, task.ProjectID, task.Title, task.Description,
		nullableDate(task.DueDate), task.Status, task.Priority, task.AssigneeID,
		task.IsArchived, task.ID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, task.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
		return ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = $1`, task.ID); err != nil {
		return err
	}
	if err := insertTags(ctx, tx, task.ID, task.Tags); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	task.Version = expectedVersion + 1
	return nil
}

func (r *TaskRepository) tagsFor(ctx context.Context, taskID uuid.UUID) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tag FROM task_tags WHERE task_id = $1 ORDER BY tag ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func insertTags(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, tags []string) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_tags (task_id, tag) VALUES ($1, $2)`, taskID, tag); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var dueDate sql.NullTime
	var assignee uuid.NullUUID
	err := row.Scan(
		&task.ID, &task.ProjectID, &task.Title, &task.Description, &dueDate,
		&task.Status, &task.Priority, &assignee, &task.CreatedBy,
		&task.IsArchived, &task.Version, &task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		d := dateOf(dueDate.Time)
		task.DueDate = &d
	}
	if assignee.Valid {
		task.AssigneeID = &assignee.UUID
	}
	return task, nil
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dateOf(*t)
}
