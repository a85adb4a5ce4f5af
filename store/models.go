// Package store is a bun backed IdentityLookup and CredentialStore.
package store

import (
	"time"

	auth "github.com/goliatone/go-tokenauth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName      string     `bun:"full_name" json:"full_name,omitempty"`
	Role          string     `bun:"user_role,notnull" json:"user_role,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Active        bool       `bun:"is_active,notnull" json:"is_active"`
	Superuser     bool       `bun:"is_superuser,notnull" json:"is_superuser"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

func prepareUserDefaults(user *User, now time.Time) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = string(auth.RoleMember)
	}
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}
	user.UpdatedAt = &now
}

// UserIdentity adapts a User into the auth.Identity interface.
type UserIdentity struct {
	user *User
}

var _ auth.Identity = UserIdentity{}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) auth.Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

func (u UserIdentity) Username() string {
	if u.user == nil {
		return ""
	}
	return u.user.Username
}

func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

func (u UserIdentity) Role() string {
	if u.user == nil {
		return ""
	}
	return u.user.Role
}

func (u UserIdentity) IsActive() bool {
	return u.user != nil && u.user.Active
}

func (u UserIdentity) IsSuperuser() bool {
	return u.user != nil && u.user.Superuser
}

func (u UserIdentity) PasswordHash() string {
	if u.user == nil {
		return ""
	}
	return u.user.PasswordHash
}

// User returns the underlying model
func (u UserIdentity) User() *User {
	return u.user
}
