package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/chepyr/go-minitask/internal/models"
	"github.com/google/uuid"
)

// defines methods for note db operations
type NoteRepositoryInterface interface {
	Create(ctx context.Context, note *models.Note) error
	GetVisible(ctx context.Context, id uuid.UUID, user *models.User, now time.Time) (*models.Note, error)
	Update(ctx context.Context, note *models.Note) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Note, error)
}

type NoteRepository struct {
	db *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	query := `INSERT INTO notes (id, task_id, body, author_id, created_at)
	 VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(
		ctx, query, note.ID, note.TaskID, note.Body, note.AuthorID, note.CreatedAt)
	return err
}

// GetVisible loads one note if the user can see its task: a note is visible
// exactly when its task's project is non-archived and the user is a
// superuser or holds an active membership. Missing and invisible notes both
// come back as sql.ErrNoRows.
func (r *NoteRepository) GetVisible(ctx context.Context, id uuid.UUID, user *models.User, now time.Time) (*models.Note, error) {
	query := `SELECT n.id, n.task_id, n.body, n.author_id, n.created_at
	 FROM notes n
	 JOIN tasks t ON t.id = n.task_id
	 JOIN projects p ON p.id = t.project_id
	 WHERE n.id = $1 AND NOT p.is_archived`
	args := []interface{}{id}

	if !user.IsSuperuser {
		query += " AND " + activeMembership("t.project_id", len(args)+1)
		args = append(args, user.ID, dateOf(now))
	}

	note := &models.Note{}
	var author uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&note.ID, &note.TaskID, &note.Body, &author, &note.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if author.Valid {
		note.AuthorID = &author.UUID
	}
	return note, nil
}

func (r *NoteRepository) Update(ctx context.Context, note *models.Note) error {
	query := `UPDATE notes SET body = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, note.Body, note.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *NoteRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Note, error) {
	query := `SELECT id, task_id, body, author_id, created_at
	 FROM notes WHERE task_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note := &models.Note{}
		var author uuid.NullUUID
		if err := rows.Scan(
			&note.ID, &note.TaskID, &note.Body, &author, &note.CreatedAt,
		); err != nil {
			return nil, err
		}
		if author.Valid {
			note.AuthorID = &author.UUID
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}
