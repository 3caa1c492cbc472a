package model

import (
	"time"
)

// Visibility is the access policy of a file.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityPassword Visibility = "password"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityPassword:
		return true
	}
	return false
}

// Sort keys accepted by file listings.
var FileSortFields = []string{"createdAt", "updatedAt", "title", "size", "downloads"}

type File struct {
	ID           string     `db:"id" bson:"_id" json:"id"`
	Title        string     `db:"title" bson:"title" json:"title"`
	Description  string     `db:"description" bson:"description" json:"description,omitempty"`
	OwnerID      string     `db:"owner_id" bson:"ownerId" json:"ownerId"`
	GroupID      *string    `db:"group_id" bson:"groupId,omitempty" json:"groupId,omitempty"`
	StorageID    string     `db:"storage_id" bson:"storageId" json:"storageId"`
	URL          string     `db:"url" bson:"url" json:"url"`
	SecureURL    string     `db:"secure_url" bson:"secureUrl" json:"secureUrl"`
	Visibility   Visibility `db:"visibility" bson:"visibility" json:"visibility"`
	PasswordHash *string    `db:"password_hash" bson:"passwordHash,omitempty" json:"-"` // Set iff Visibility == password
	Size         int64      `db:"size" bson:"size" json:"size"`
	ContentType  string     `db:"content_type" bson:"contentType" json:"fileType"`
	OriginalName string     `db:"original_name" bson:"originalName" json:"originalName"`
	Downloads    int64      `db:"downloads" bson:"downloads" json:"downloads"`
	CreatedAt    time.Time  `db:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" bson:"updatedAt" json:"updatedAt"`
}

func (f *File) HasPassword() bool {
	return f.PasswordHash != nil && *f.PasswordHash != ""
}

func (f *File) IsOwnedBy(userID string) bool {
	return userID != "" && f.OwnerID == userID
}

// FileFilter is the predicate shared by a listing and its count.
// Owner scope and public scope are mutually exclusive; use OwnedFiles or PublicFiles.
type FileFilter struct {
	OwnerID    string
	PublicOnly bool
	GroupID    string // owner scope only
	Search     string // matched against title and description
}

func OwnedFiles(ownerID string) FileFilter {
	return FileFilter{OwnerID: ownerID}
}

func PublicFiles() FileFilter {
	return FileFilter{PublicOnly: true}
}
