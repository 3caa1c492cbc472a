package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
)

var groupSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
}

type groupRepository struct {
	db *sqlx.DB
}

func NewGroupRepository(db *sqlx.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) Create(ctx context.Context, group *model.Group) error {
	query := `INSERT INTO file_groups (id, title, description, owner_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		group.ID,
		group.Title,
		group.Description,
		group.OwnerID,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	return nil
}

func (r *groupRepository) ByID(ctx context.Context, id string) (*model.Group, error) {
	group := &model.Group{}

	err := r.db.GetContext(ctx, group, `SELECT * FROM file_groups WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

func (r *groupRepository) Find(ctx context.Context, ownerID string, params pagination.Params) ([]*model.Group, error) {
	column, ok := groupSortColumns[params.Sort.Field]
	if !ok {
		column = "created_at"
	}
	dir := "ASC"
	if params.Sort.Desc {
		dir = "DESC"
	}

	query := fmt.Sprintf(`SELECT * FROM file_groups WHERE owner_id = $1 ORDER BY %s %s, id %s LIMIT $2 OFFSET $3`,
		column, dir, dir)

	groups := []*model.Group{}
	err := r.db.SelectContext(ctx, &groups, query, ownerID, params.Limit, params.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	return groups, nil
}

func (r *groupRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var total int64

	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM file_groups WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}

	return total, nil
}

func (r *groupRepository) Update(ctx context.Context, group *model.Group) error {
	query := `UPDATE file_groups SET title = $1, description = $2, updated_at = $3 WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, group.Title, group.Description, group.UpdatedAt, group.ID)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	return expectRow(result, ErrGroupNotFound)
}

func (r *groupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM file_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	return expectRow(result, ErrGroupNotFound)
}
