package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a member's permission level inside an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// CanManage reports whether the role may connect providers and invite members.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// User is a dashboard account.
type User struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Email       string `gorm:"not null;uniqueIndex" json:"email"`
	DisplayName string `gorm:"not null" json:"display_name"`

	PasswordHash *string `json:"-"`

	// TOTP second factor
	TOTPSecret  *string `json:"-"`
	TOTPEnabled bool    `gorm:"default:false" json:"totp_enabled"`

	LastActiveAt *time.Time `json:"last_active_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// Organization is the tenant that owns provider connections, posts and templates.
type Organization struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	Name    string `gorm:"not null" json:"name"`
	Slug    string `gorm:"not null;uniqueIndex" json:"slug"`
	OwnerID string `gorm:"not null;index;size:36" json:"owner_id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// Membership links a user to an organization with a role.
type Membership struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	OrgID  string `gorm:"not null;size:36;uniqueIndex:idx_membership_org_user" json:"org_id"`
	UserID string `gorm:"not null;size:36;uniqueIndex:idx_membership_org_user;index" json:"user_id"`
	Role   Role   `gorm:"not null;size:16" json:"role"`

	Organization Organization `gorm:"foreignKey:OrgID" json:"organization,omitempty"`
	User         User         `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Invitation is a pending invite of an email address into an organization.
type Invitation struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	OrgID      string     `gorm:"not null;size:36;index" json:"org_id"`
	Email      string     `gorm:"not null" json:"email"`
	Role       Role       `gorm:"not null;size:16" json:"role"`
	Token      string     `gorm:"not null;uniqueIndex" json:"-"`
	InvitedBy  string     `gorm:"size:36" json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}
