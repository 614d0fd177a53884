// Package domain contains persistence models for the org service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization represents a tenant.
type Organization struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Slug      string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrganizationMember represents membership of a user in an organization.
type OrganizationMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:varchar(32);not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }

// User mirrors the identity provider's profile for email delivery.
type User struct {
	ID          snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Email       string       `gorm:"type:varchar(320);not null" json:"email"`
	DisplayName string       `gorm:"type:varchar(255);not null;default:''" json:"display_name"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
