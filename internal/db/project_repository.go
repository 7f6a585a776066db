package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/chepyr/go-minitask/internal/models"
	"github.com/google/uuid"
)

// defines methods for project db operations
type ProjectRepositoryInterface interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	AddMember(ctx context.Context, membership *models.ProjectMembership) error
	ListVisible(ctx context.Context, user *models.User, now time.Time) ([]*models.Project, error)
	IsVisible(ctx context.Context, projectID uuid.UUID, user *models.User, now time.Time) (bool, error)
}

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	query := `INSERT INTO projects (id, title, is_archived, created_by, created_at)
	 VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(
		ctx, query, project.ID, project.Title, project.IsArchived,
		project.CreatedBy, project.CreatedAt)
	return err
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT id, title, is_archived, created_by, created_at FROM projects WHERE id = $1`
	project := &models.Project{}
	var createdBy uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.Title, &project.IsArchived, &createdBy, &project.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		project.CreatedBy = &createdBy.UUID
	}
	return project, nil
}

func (r *ProjectRepository) AddMember(ctx context.Context, membership *models.ProjectMembership) error {
	query := `INSERT INTO project_memberships (id, project_id, user_id, expires_at)
	 VALUES ($1, $2, $3, $4)`

	var expiresAt interface{}
	if membership.ExpiresAt != nil {
		expiresAt = dateOf(*membership.ExpiresAt)
	}
	_, err := r.db.ExecContext(
		ctx, query, membership.ID, membership.ProjectID, membership.UserID, expiresAt)
	return err
}

// ListVisible returns non-archived projects the user can see: all of them
// for superusers, otherwise those with an active membership.
func (r *ProjectRepository) ListVisible(ctx context.Context, user *models.User, now time.Time) ([]*models.Project, error) {
	query := `SELECT p.id, p.title, p.is_archived, p.created_by, p.created_at
	 FROM projects p WHERE NOT p.is_archived`
	var args []interface{}

	if !user.IsSuperuser {
		query += " AND " + activeMembership("p.id", len(args)+1)
		args = append(args, user.ID, dateOf(now))
	}
	query += " ORDER BY p.title ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		project := &models.Project{}
		var createdBy uuid.NullUUID
		if err := rows.Scan(
			&project.ID, &project.Title, &project.IsArchived, &createdBy, &project.CreatedAt,
		); err != nil {
			return nil, err
		}
		if createdBy.Valid {
			project.CreatedBy = &createdBy.UUID
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

// IsVisible reports whether the project exists, is not archived and is
// visible to the user. Used as the authorization gate for task creation.
func (r *ProjectRepository) IsVisible(ctx context.Context, projectID uuid.UUID, user *models.User, now time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM projects p WHERE p.id = $1 AND NOT p.is_archived`
	args := []interface{}{projectID}

	if !user.IsSuperuser {
		query += " AND " + activeMembership("p.id", len(args)+1)
		args = append(args, user.ID, dateOf(now))
	}
	query += ")"

	var visible bool
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&visible)
	return visible, err
}
