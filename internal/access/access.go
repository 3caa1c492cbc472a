// Package access decides whether a requester may read a file.
package access

import (
	"github.com/templui/fileshare/internal/model"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Allow Decision = iota
	Deny
	PasswordRequired
	PasswordIncorrect
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case PasswordRequired:
		return "password_required"
	case PasswordIncorrect:
		return "password_incorrect"
	}
	return "unknown"
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(hash, password string) bool
}

type Authorizer struct {
	verifier PasswordVerifier
}

func NewAuthorizer(verifier PasswordVerifier) *Authorizer {
	return &Authorizer{verifier: verifier}
}

// Authorize decides access to file for requesterID (empty for anonymous).
// file must come from the privileged read path so the password hash is present.
// An empty password is treated as not supplied. Ownership does not bypass the
// password check.
func (a *Authorizer) Authorize(file *model.File, requesterID, password string) Decision {
	if file == nil {
		return Deny
	}

	switch file.Visibility {
	case model.VisibilityPublic:
		return Allow
	case model.VisibilityPrivate:
		if file.IsOwnedBy(requesterID) {
			return Allow
		}
		return Deny
	case model.VisibilityPassword:
		if password == "" {
			return PasswordRequired
		}
		if !file.HasPassword() || !a.verifier.Verify(*file.PasswordHash, password) {
			return PasswordIncorrect
		}
		return Allow
	}

	return Deny
}
