package models

import (
	"time"

	"github.com/google/uuid"
)

// Admin role constants.
const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
)

// AdminUser is an operator account for the review console. PasswordHash is
// an argon2id encoded hash and never serialized.
type AdminUser struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}
