package db

import (
	"context"
	"database/sql"

	"github.com/chepyr/go-minitask/internal/models"
)

// defines methods for user db operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email, password_hash, is_superuser, can_change_task, can_delete_task, created_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(
		ctx, query, user.ID, user.Email, user.PasswordHash,
		user.IsSuperuser, user.CanChangeTask, user.CanDeleteTask, user.CreatedAt)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, email, password_hash, is_superuser, can_change_task, can_delete_task, created_at
	 FROM users WHERE id = $1`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.IsSuperuser, &user.CanChangeTask, &user.CanDeleteTask, &user.CreatedAt,
	)
	return user, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, password_hash, is_superuser, can_change_task, can_delete_task, created_at
	 FROM users WHERE email = $1`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.IsSuperuser, &user.CanChangeTask, &user.CanDeleteTask, &user.CreatedAt,
	)
	return user, err
}
