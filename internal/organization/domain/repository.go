package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Role      string
	CreatedAt time.Time
}

// MemberContact is a member joined with the mirrored user profile.
type MemberContact struct {
	UserID      snowflake.ID
	Role        string
	Email       string
	DisplayName string
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	AddMember(ctx context.Context, member OrganizationMember) error
	GetMember(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	ListMembers(ctx context.Context, orgID snowflake.ID, roles []string) ([]MemberContact, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID snowflake.ID) (*User, error)
}
