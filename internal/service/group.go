package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
	"github.com/templui/fileshare/internal/repository"
	"github.com/templui/fileshare/internal/validation"
)

// countConcurrency bounds the per-group count queries of one listing.
const countConcurrency = 8

type CreateGroupInput struct {
	Title       string `json:"title" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type UpdateGroupInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type GroupPage struct {
	Items []*model.Group
	Meta  pagination.Meta
}

type GroupService struct {
	groups repository.GroupRepository
	files  repository.FileRepository
}

func NewGroupService(groups repository.GroupRepository, files repository.FileRepository) *GroupService {
	return &GroupService{
		groups: groups,
		files:  files,
	}
}

func (s *GroupService) Create(ctx context.Context, ownerID string, in CreateGroupInput) (*model.Group, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	group := &model.Group{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.groups.Create(ctx, group)
	if err != nil {
		return nil, apperr.NewUpstream("Failed to create group", err)
	}

	slog.Info("group created", "group_id", group.ID, "user_id", ownerID)
	return group, nil
}

// List returns a page of the owner's groups, each with its file count.
func (s *GroupService) List(ctx context.Context, ownerID string, params pagination.Params) (*GroupPage, error) {
	groups, err := s.groups.Find(ctx, ownerID, params)
	if err != nil {
		return nil, apperr.NewUpstream("Failed to list groups", err)
	}
	total, err := s.groups.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.NewUpstream("Failed to list groups", err)
	}

	err = s.withFileCounts(ctx, groups)
	if err != nil {
		return nil, err
	}

	if groups == nil {
		groups = []*model.Group{}
	}
	return &GroupPage{Items: groups, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *GroupService) Get(ctx context.Context, ownerID, groupID string) (*model.Group, error) {
	group, err := s.owned(ctx, ownerID, groupID)
	if err != nil {
		return nil, err
	}

	err = s.withFileCounts(ctx, []*model.Group{group})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (s *GroupService) Update(ctx context.Context, ownerID, groupID string, in UpdateGroupInput) (*model.Group, error) {
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
	}

	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	group, err := s.owned(ctx, ownerID, groupID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		group.Title = *in.Title
	}
	if in.Description != nil {
		group.Description = strings.TrimSpace(*in.Description)
	}
	group.UpdatedAt = time.Now().UTC()

	err = s.groups.Update(ctx, group)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to update group", err)
	}

	return group, nil
}

// Delete orphans the group's files before removing the group itself.
// Files are never deleted along with their group.
func (s *GroupService) Delete(ctx context.Context, ownerID, groupID string) error {
	group, err := s.owned(ctx, ownerID, groupID)
	if err != nil {
		return err
	}

	cleared, err := s.files.ClearGroup(ctx, group.ID)
	if err != nil {
		return apperr.NewUpstream("Failed to delete group", err)
	}

	err = s.groups.Delete(ctx, group.ID)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return ErrGroupNotFound
	}
	if err != nil {
		return apperr.NewUpstream("Failed to delete group", err)
	}

	slog.Info("group deleted", "group_id", group.ID, "user_id", ownerID, "files_orphaned", cleared)
	return nil
}

// Files lists the owner's files inside one of their groups.
func (s *GroupService) Files(ctx context.Context, ownerID, groupID, search string, params pagination.Params) (*FilePage, error) {
	group, err := s.owned(ctx, ownerID, groupID)
	if err != nil {
		return nil, err
	}

	filter := model.OwnedFiles(ownerID)
	filter.GroupID = group.ID
	filter.Search = strings.TrimSpace(search)

	items, err := s.files.Find(ctx, filter, params)
	if err != nil {
		return nil, apperr.NewUpstream("Failed to list group files", err)
	}
	total, err := s.files.Count(ctx, filter)
	if err != nil {
		return nil, apperr.NewUpstream("Failed to list group files", err)
	}

	if items == nil {
		items = []*model.File{}
	}
	return &FilePage{Items: items, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *GroupService) owned(ctx context.Context, ownerID, groupID string) (*model.Group, error) {
	group, err := s.groups.ByID(ctx, groupID)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to load group", err)
	}
	if !group.IsOwnedBy(ownerID) {
		return nil, ErrNotGroupOwner
	}
	return group, nil
}

// withFileCounts fills FileCount on every group, counting concurrently.
func (s *GroupService) withFileCounts(ctx context.Context, groups []*model.Group) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)

	for _, group := range groups {
		g.Go(func() error {
			count, err := s.files.CountByGroup(gctx, group.ID)
			if err != nil {
				return err
			}
			group.FileCount = &count
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return apperr.NewUpstream("Failed to count group files", err)
	}
	return nil
}
