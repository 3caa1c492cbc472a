package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/templui/fileshare/internal/model"
)

const userColumns = `id, username, email, role, created_at, updated_at`

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

func (r *userRepository) ByID(ctx context.Context, id string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) ByIDWithPassword(ctx context.Context, id string) (*model.User, error) {
	return r.get(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (r *userRepository) ByEmailWithPassword(ctx context.Context, email string) (*model.User, error) {
	return r.get(ctx, `SELECT * FROM users WHERE email = $1`, email)
}

func (r *userRepository) get(ctx context.Context, query string, args ...any) (*model.User, error) {
	user := &model.User{}

	err := r.db.GetContext(ctx, user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func (r *userRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE (username = $1 OR email = $2) AND id <> $3`

	err := r.db.GetContext(ctx, &count, query, username, email, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check user uniqueness: %w", err)
	}

	return count > 0, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `UPDATE users SET username = $1, email = $2, role = $3, updated_at = $4 WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query, user.Username, user.Email, user.Role, user.UpdatedAt, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectRow(result, ErrUserNotFound)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return expectRow(result, ErrUserNotFound)
}

// expectRow maps "no rows affected" to notFound.
func expectRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
