package model

import (
	"time"
)

type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	LastSignInAt *time.Time `db:"last_sign_in_at" json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
