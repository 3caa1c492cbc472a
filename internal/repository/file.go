package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
)

const fileColumns = `id, title, description, owner_id, group_id, storage_id, url, secure_url, visibility,
	size, content_type, original_name, downloads, created_at, updated_at`

var fileSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"size":      "size",
	"downloads": "downloads",
}

type fileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *model.File) error {
	query := `INSERT INTO files (id, title, description, owner_id, group_id, storage_id, url, secure_url, visibility,
	          password_hash, size, content_type, original_name, downloads, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.Title,
		file.Description,
		file.OwnerID,
		file.GroupID,
		file.StorageID,
		file.URL,
		file.SecureURL,
		string(file.Visibility),
		file.PasswordHash,
		file.Size,
		file.ContentType,
		file.OriginalName,
		file.Downloads,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	return nil
}

func (r *fileRepository) ByID(ctx context.Context, id string) (*model.File, error) {
	return r.get(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
}

func (r *fileRepository) ByIDWithPassword(ctx context.Context, id string) (*model.File, error) {
	return r.get(ctx, `SELECT * FROM files WHERE id = $1`, id)
}

func (r *fileRepository) get(ctx context.Context, query string, args ...any) (*model.File, error) {
	file := &model.File{}

	err := r.db.GetContext(ctx, file, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}

func (r *fileRepository) Find(ctx context.Context, filter model.FileFilter, params pagination.Params) ([]*model.File, error) {
	where, args := fileWhere(filter)

	column, ok := fileSortColumns[params.Sort.Field]
	if !ok {
		column = "created_at"
	}
	dir := "ASC"
	if params.Sort.Desc {
		dir = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM files %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		fileColumns, where, column, dir, dir, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset())

	files := []*model.File{}
	err := r.db.SelectContext(ctx, &files, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

func (r *fileRepository) Count(ctx context.Context, filter model.FileFilter) (int64, error) {
	where, args := fileWhere(filter)

	var total int64
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM files `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}

	return total, nil
}

// fileWhere builds the predicate shared by Find and Count.
func fileWhere(filter model.FileFilter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.PublicOnly {
		conds = append(conds, "visibility = "+arg(string(model.VisibilityPublic)))
	} else {
		conds = append(conds, "owner_id = "+arg(filter.OwnerID))
		if filter.GroupID != "" {
			conds = append(conds, "group_id = "+arg(filter.GroupID))
		}
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		p := arg("%" + strings.ToLower(escapeLike(search)) + "%")
		conds = append(conds, fmt.Sprintf(`(LOWER(title) LIKE %s ESCAPE '\' OR LOWER(description) LIKE %s ESCAPE '\')`, p, p))
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

func (r *fileRepository) CountByGroup(ctx context.Context, groupID string) (int64, error) {
	var total int64

	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM files WHERE group_id = $1`, groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to count group files: %w", err)
	}

	return total, nil
}

func (r *fileRepository) Update(ctx context.Context, file *model.File) error {
	query := `UPDATE files SET title = $1, description = $2, group_id = $3, visibility = $4, password_hash = $5, updated_at = $6
	          WHERE id = $7`

	result, err := r.db.ExecContext(ctx, query,
		file.Title,
		file.Description,
		file.GroupID,
		string(file.Visibility),
		file.PasswordHash,
		file.UpdatedAt,
		file.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}

	return expectRow(result, ErrFileNotFound)
}

func (r *fileRepository) IncrementDownloads(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE files SET downloads = downloads + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}

	return expectRow(result, ErrFileNotFound)
}

func (r *fileRepository) ClearGroup(ctx context.Context, groupID string) (int64, error) {
	query := `UPDATE files SET group_id = NULL, updated_at = $1 WHERE group_id = $2`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear group: %w", err)
	}

	return result.RowsAffected()
}

func (r *fileRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return expectRow(result, ErrFileNotFound)
}
