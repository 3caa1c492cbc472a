package service

import (
	"github.com/templui/fileshare/internal/apperr"
)

var (
	ErrInvalidCredentials       = apperr.NewUnauthorized("Invalid credentials")
	ErrInvalidToken             = apperr.NewUnauthorized("Not authorized, token failed")
	ErrUserExists               = apperr.NewValidation("User with this email or username already exists")
	ErrUserNotFound             = apperr.NewNotFound("User not found")
	ErrCurrentPasswordIncorrect = apperr.NewValidation("Current password is incorrect",
		apperr.FieldError{Field: "currentPassword", Message: "current password is incorrect"})

	ErrFileNotFound      = apperr.NewNotFound("File not found")
	ErrFileForbidden     = apperr.NewForbidden("Access denied to private file")
	ErrNotFileOwner      = apperr.NewForbidden("Not authorized to modify this file")
	ErrPasswordRequired  = apperr.NewUnauthorized("Password required for this file")
	ErrPasswordIncorrect = apperr.NewUnauthorized("Incorrect password")
	ErrFilePasswordEmpty = apperr.NewValidation("Password is required for password-protected files",
		apperr.FieldError{Field: "password", Message: "password is required when visibility is password"})
	ErrInvalidGroup = apperr.NewValidation("Group not found",
		apperr.FieldError{Field: "groupId", Message: "must reference one of your groups"})

	ErrGroupNotFound = apperr.NewNotFound("Group not found")
	ErrNotGroupOwner = apperr.NewForbidden("Not authorized to access this group")
)
