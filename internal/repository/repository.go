package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("username or email already exists")
	ErrFileNotFound  = errors.New("file not found")
	ErrGroupNotFound = errors.New("group not found")
)

// UserRepository stores credentials. Default reads never load the password hash.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	ByID(ctx context.Context, id string) (*model.User, error)
	ByIDWithPassword(ctx context.Context, id string) (*model.User, error)
	ByEmailWithPassword(ctx context.Context, email string) (*model.User, error)
	// ExistsByUsernameOrEmail ignores the user with excludeID (empty for none).
	ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, error)
	Update(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// FileRepository stores file records. ByIDWithPassword is the only read that
// loads the password hash and exists for access authorization.
type FileRepository interface {
	Create(ctx context.Context, file *model.File) error
	ByID(ctx context.Context, id string) (*model.File, error)
	ByIDWithPassword(ctx context.Context, id string) (*model.File, error)
	Find(ctx context.Context, filter model.FileFilter, params pagination.Params) ([]*model.File, error)
	Count(ctx context.Context, filter model.FileFilter) (int64, error)
	CountByGroup(ctx context.Context, groupID string) (int64, error)
	Update(ctx context.Context, file *model.File) error
	// IncrementDownloads bumps the counter in a single store-side operation.
	IncrementDownloads(ctx context.Context, id string) error
	// ClearGroup removes the group reference from every member file.
	ClearGroup(ctx context.Context, groupID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
	ByID(ctx context.Context, id string) (*model.Group, error)
	Find(ctx context.Context, ownerID string, params pagination.Params) ([]*model.Group, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	Update(ctx context.Context, group *model.Group) error
	Delete(ctx context.Context, id string) error
}

// isUniqueViolation works for both SQLite and PostgreSQL
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value")
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
