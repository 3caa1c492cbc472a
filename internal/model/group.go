package model

import (
	"time"
)

// Sort keys accepted by group listings.
var GroupSortFields = []string{"createdAt", "updatedAt", "title"}

type Group struct {
	ID          string    `db:"id" bson:"_id" json:"id"`
	Title       string    `db:"title" bson:"title" json:"title"`
	Description string    `db:"description" bson:"description" json:"description,omitempty"`
	OwnerID     string    `db:"owner_id" bson:"ownerId" json:"ownerId"`
	CreatedAt   time.Time `db:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" bson:"updatedAt" json:"updatedAt"`

	// Computed fields (not in database)
	FileCount *int64 `db:"-" bson:"-" json:"fileCount,omitempty"`
}

func (g *Group) IsOwnedBy(userID string) bool {
	return userID != "" && g.OwnerID == userID
}
