package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/templui/fileshare/internal/apperr"
	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/repository"
	"github.com/templui/fileshare/internal/security"
	"github.com/templui/fileshare/internal/validation"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required,password"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileInput struct {
	Username *string `json:"username" validate:"omitempty,username"`
	Email    *string `json:"email" validate:"omitempty,mailbox"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

// Session is an authenticated user plus the token that proves it.
type Session struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

type AuthService struct {
	users  repository.UserRepository
	hasher *security.Hasher
	tokens *security.TokenManager
}

func NewAuthService(users repository.UserRepository, hasher *security.Hasher, tokens *security.TokenManager) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = validation.NormalizeEmail(in.Email)

	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email, "")
	if err != nil {
		return nil, apperr.NewUpstream("Failed to register user", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.NewInternal("Failed to register user", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The unique index still decides when two registrations race.
	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateUser) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to register user", err)
	}

	slog.Info("user registered", "user_id", user.ID)

	user.PasswordHash = ""
	return s.newSession(user)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = validation.NormalizeEmail(in.Email)

	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	user, err := s.users.ByEmailWithPassword(ctx, in.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to log in", err)
	}

	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return s.newSession(user)
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to authenticate", err)
	}

	return user, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to load user", err)
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if in.Email != nil {
		normalized := validation.NormalizeEmail(*in.Email)
		in.Email = &normalized
	}

	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := false
	if in.Username != nil && *in.Username != user.Username {
		user.Username = *in.Username
		changed = true
	}
	if in.Email != nil && *in.Email != user.Email {
		user.Email = *in.Email
		changed = true
	}
	if !changed {
		return user, nil
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, user.Username, user.Email, user.ID)
	if err != nil {
		return nil, apperr.NewUpstream("Failed to update profile", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	user.UpdatedAt = time.Now().UTC()
	err = s.users.Update(ctx, user)
	if errors.Is(err, repository.ErrDuplicateUser) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, apperr.NewUpstream("Failed to update profile", err)
	}

	return user, nil
}

// ChangePassword re-hashes only when the new password differs from the stored one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	err := validation.Struct(in)
	if err != nil {
		return err
	}

	user, err := s.users.ByIDWithPassword(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return apperr.NewUpstream("Failed to change password", err)
	}

	if !s.hasher.Verify(user.PasswordHash, in.CurrentPassword) {
		return ErrCurrentPasswordIncorrect
	}
	if in.NewPassword == in.CurrentPassword {
		return nil
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return apperr.NewInternal("Failed to change password", err)
	}

	err = s.users.UpdatePassword(ctx, userID, hash)
	if err != nil {
		return apperr.NewUpstream("Failed to change password", err)
	}

	slog.Info("password changed", "user_id", userID)
	return nil
}

func (s *AuthService) newSession(user *model.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperr.NewInternal("Failed to issue token", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
