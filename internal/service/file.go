package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"

	"github.com/templui/fileshare/internal/access"
	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
	"github.com/templui/fileshare/internal/repository"
	"github.com/templui/fileshare/internal/security"
	"github.com/templui/fileshare/internal/storage"
	"github.com/templui/fileshare/internal/validation"
)

const (
	maxTitleLength = 100
	qrCodeSize     = 256
)

type UploadInput struct {
	Title       string           `json:"title" validate:"max=100"`
	Description string           `json:"description" validate:"max=500"`
	GroupID     string           `json:"groupId" validate:"max=64"`
	Visibility  model.Visibility `json:"visibility" validate:"omitempty,visibility"`
	Password    string           `json:"password" validate:"max=72"`

	Filename    string    `json:"-"`
	ContentType string    `json:"-"`
	Size        int64     `json:"-"`
	Body        io.Reader `json:"-" validate:"-"`
}

// UpdateFileInput carries a partial update; nil fields are left unchanged.
// An empty GroupID removes the file from its group.
type UpdateFileInput struct {
	Title       *string           `json:"title" validate:"omitempty,min=1,max=100"`
	Description *string           `json:"description" validate:"omitempty,max=500"`
	GroupID     *string           `json:"groupId" validate:"omitempty,max=64"`
	Visibility  *model.Visibility `json:"visibility" validate:"omitempty,visibility"`
	Password    *string           `json:"password" validate:"omitempty,max=72"`
}

type ListFilesInput struct {
	Search  string
	GroupID string
	Params  pagination.Params
}

type FilePage struct {
	Items []*model.File
	Meta  pagination.Meta
}

type Download struct {
	URL      string `json:"downloadUrl"`
	FileName string `json:"fileName"`
}

type FileService struct {
	files       repository.FileRepository
	groups      repository.GroupRepository
	storage     storage.Storage
	authorizer  *access.Authorizer
	hasher      *security.Hasher
	constraints validation.FileConstraints
	folder      string
	shareURL    func(fileID string) string
}

func NewFileService(
	files repository.FileRepository,
	groups repository.GroupRepository,
	store storage.Storage,
	hasher *security.Hasher,
	constraints validation.FileConstraints,
	folder string,
	shareURL func(fileID string) string,
) *FileService {
	return &FileService{
		files:       files,
		groups:      groups,
		storage:     store,
		authorizer:  access.NewAuthorizer(hasher),
		hasher:      hasher,
		constraints: constraints,
		folder:      folder,
		shareURL:    shareURL,
	}
}

// Upload stores the object first and the record second. If the record cannot be
// written the object is removed again so no record ever points at nothing.
func (s *FileService) Upload(ctx context.Context, ownerID string, in UploadInput) (*model.File, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		in.Title = defaultTitle(in.Filename)
	}
	in.GroupID = strings.TrimSpace(in.GroupID)
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPrivate
	}

	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}
	err = s.constraints.ValidateUpload(in.Filename, in.Size)
	if err != nil {
		return nil, err
	}
	if in.Visibility == model.VisibilityPassword && in.Password == "" {
		return nil, ErrFilePasswordEmpty
	}

	var groupID *string
	if in.GroupID != "" {
		err = s.requireOwnGroup(ctx, ownerID, in.GroupID)
		if err != nil {
			return nil, err
		}
		groupID = &in.GroupID
	}

	var passwordHash *string
	if in.Visibility == model.VisibilityPassword {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, apperr.NewInternal("Failed to upload file", err)
		}
		passwordHash = &hash
	}

	id := uuid.New().String()
	obj, err := s.storage.Upload(ctx, storage.ObjectKey(s.folder, id, in.Filename), in.ContentType, in.Body)
	if err != nil {
		return nil, apperr.NewUpstream("Failed to upload file to storage", err)
	}

	now := time.Now().UTC()
	file := &model.File{
		ID:           id,
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		OwnerID:      ownerID,
		GroupID:      groupID,
		StorageID:    obj.ID,
		URL:          obj.URL,
		SecureURL:    obj.SecureURL,
		Visibility:   in.Visibility,
		PasswordHash: passwordHash,
		Size:         in.Size,
		ContentType:  in.ContentType,
		OriginalName: in.Filename,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.files.Create(ctx, file)
	if err != nil {
		delErr := s.storage.Delete(context.WithoutCancel(ctx), obj.ID)
		if delErr != nil {
			slog.Error("orphaned storage object after failed upload",
				"storage_id", obj.ID,
				"file_id", id,
				"error", delErr,
			)
		}
		return nil, apperr.NewUpstream("Failed to save file", err)
	}

	slog.Info("file uploaded",
		"file_id", file.ID,
		"user_id", ownerID,
		"visibility", file.Visibility,
		"size", file.Size,
	)

	file.PasswordHash = nil
	return file, nil
}

func (s *FileService) ListMine(ctx context.Context, ownerID string, in ListFilesInput) (*FilePage, error) {
	filter := model.OwnedFiles(ownerID)
	filter.GroupID = strings.TrimSpace(in.GroupID)
	filter.Search = strings.TrimSpace(in.Search)
	return s.list(ctx, filter, in.Params)
}

func (s *FileService) ListPublic(ctx context.Context, search string, params pagination.Params) (*FilePage, error) {
	filter := model.PublicFiles()
	filter.Search = strings.TrimSpace(search)
	return s.list(ctx, filter, params)
}

// list runs the item query and its count with the same filter.
func (s *FileService) list(ctx context.Context, filter model.FileFilter, params pagination.Params) (*FilePage, error) {
	var (
		items []*model.File
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.files.Find(gctx, filter, params)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.files.Count(gctx, filter)
		return err
	})
	err := g.Wait()
	if err != nil {
		return nil, apperr.NewUpstream("Failed to list files", err)
	}

	if items == nil {
		items = []*model.File{}
	}
	return &FilePage{Items: items, Meta: pagination.NewMeta(params, total)}, nil
}

// Get returns file metadata to anyone the file's visibility admits.
func (s *FileService) Get(ctx context.Context, fileID, requesterID, password string) (*model.File, error) {
	file, err := s.authorized(ctx, fileID, requesterID, password)
	if err != nil {
		return nil, err
	}
	file.PasswordHash = nil
	return file, nil
}

// Download authorizes the requester, counts the download and returns a link.
// Metadata reads never touch the counter.
func (s *FileService) Download(ctx context.Context, fileID, requesterID, password string) (*Download, error) {
	file, err := s.authorized(ctx, fileID, requesterID, password)
	if err != nil {
		return nil, err
	}

	err = s.files.IncrementDownloads(ctx, file.ID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to record download", err)
	}

	name := file.OriginalName
	if name == "" {
		name = file.Title
	}

	return &Download{URL: s.downloadURL(ctx, file), FileName: name}, nil
}

func (s *FileService) Update(ctx context.Context, userID, fileID string, in UpdateFileInput) (*model.File, error) {
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
	}

	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	file, err := s.files.ByIDWithPassword(ctx, fileID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to load file", err)
	}
	if !file.IsOwnedBy(userID) {
		return nil, ErrNotFileOwner
	}

	if in.Title != nil {
		file.Title = *in.Title
	}
	if in.Description != nil {
		file.Description = strings.TrimSpace(*in.Description)
	}
	if in.GroupID != nil {
		groupID := strings.TrimSpace(*in.GroupID)
		if groupID == "" {
			file.GroupID = nil
		} else {
			err = s.requireOwnGroup(ctx, userID, groupID)
			if err != nil {
				return nil, err
			}
			file.GroupID = &groupID
		}
	}
	if in.Visibility != nil {
		file.Visibility = *in.Visibility
	}

	if file.Visibility == model.VisibilityPassword {
		switch {
		case in.Password != nil && *in.Password != "":
			hash, err := s.hasher.Hash(*in.Password)
			if err != nil {
				return nil, apperr.NewInternal("Failed to update file", err)
			}
			file.PasswordHash = &hash
		case !file.HasPassword():
			return nil, ErrFilePasswordEmpty
		}
	} else {
		file.PasswordHash = nil
	}

	file.UpdatedAt = time.Now().UTC()
	err = s.files.Update(ctx, file)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to update file", err)
	}

	file.PasswordHash = nil
	return file, nil
}

// Delete removes the record first, then the object. A failed object delete
// leaves an orphaned object behind, which is logged and not reported.
func (s *FileService) Delete(ctx context.Context, userID, fileID string) error {
	file, err := s.owned(ctx, userID, fileID)
	if err != nil {
		return err
	}

	err = s.files.Delete(ctx, file.ID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return ErrFileNotFound
	}
	if err != nil {
		return apperr.NewUpstream("Failed to delete file", err)
	}

	err = s.storage.Delete(context.WithoutCancel(ctx), file.StorageID)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		slog.Error("orphaned storage object after delete",
			"storage_id", file.StorageID,
			"file_id", file.ID,
			"error", err,
		)
	}

	slog.Info("file deleted", "file_id", file.ID, "user_id", userID)
	return nil
}

// QRCode renders the share link of an owned file as a PNG.
func (s *FileService) QRCode(ctx context.Context, userID, fileID string) ([]byte, error) {
	file, err := s.owned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(s.shareURL(file.ID), qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, apperr.NewInternal("Failed to generate QR code", err)
	}
	return png, nil
}

func (s *FileService) authorized(ctx context.Context, fileID, requesterID, password string) (*model.File, error) {
	file, err := s.files.ByIDWithPassword(ctx, fileID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to load file", err)
	}

	switch s.authorizer.Authorize(file, requesterID, password) {
	case access.Allow:
		return file, nil
	case access.PasswordRequired:
		return nil, ErrPasswordRequired
	case access.PasswordIncorrect:
		return nil, ErrPasswordIncorrect
	default:
		return nil, ErrFileForbidden
	}
}

func (s *FileService) owned(ctx context.Context, userID, fileID string) (*model.File, error) {
	file, err := s.files.ByID(ctx, fileID)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to load file", err)
	}
	if !file.IsOwnedBy(userID) {
		return nil, ErrNotFileOwner
	}
	return file, nil
}

func (s *FileService) requireOwnGroup(ctx context.Context, userID, groupID string) error {
	group, err := s.groups.ByID(ctx, groupID)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return ErrInvalidGroup
	}
	if err != nil {
		return apperr.NewUpstream("Failed to load group", err)
	}
	if !group.IsOwnedBy(userID) {
		return ErrInvalidGroup
	}
	return nil
}

// downloadURL prefers a signed link and falls back to the stored secure URL.
func (s *FileService) downloadURL(ctx context.Context, file *model.File) string {
	signer, ok := s.storage.(storage.URLSigner)
	if !ok {
		return file.SecureURL
	}

	url, err := signer.SignedURL(ctx, file.StorageID, file.Visibility == model.VisibilityPublic)
	if err != nil {
		slog.Warn("failed to sign download url", "file_id", file.ID, "error", err)
		return file.SecureURL
	}
	return url
}

func defaultTitle(filename string) string {
	title := strings.TrimSpace(filename)
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	return string([]rune(title)[:maxTitleLength])
}
