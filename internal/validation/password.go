package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ValidatePassword enforces the account password length rules.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}

	// bcrypt silently truncates passwords longer than 72 bytes
	if len(password) > 72 {
		return errors.New("password must not exceed 72 characters")
	}

	return nil
}

// ValidateUsername checks the trimmed username length.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(username))
	if n < 3 {
		return errors.New("username must be at least 3 characters")
	}
	if n > 30 {
		return errors.New("username cannot exceed 30 characters")
	}
	return nil
}
