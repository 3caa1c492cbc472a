package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `db:"id" bson:"_id" json:"id"`
	Username     string    `db:"username" bson:"username" json:"username"`
	Email        string    `db:"email" bson:"email" json:"email"`
	PasswordHash string    `db:"password_hash" bson:"passwordHash,omitempty" json:"-"` // Only loaded by the *WithPassword reads
	Role         string    `db:"role" bson:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" bson:"updatedAt" json:"updatedAt"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
