package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/pkg/errs"
)

const (
	RoleOwner    = "OWNER"
	RoleAdmin    = "ADMIN"
	RoleApprover = "APPROVER" // approves or rejects requisitions
	RoleReviewer = "REVIEWER" // notified of submissions, read-only
	RoleMember   = "MEMBER"
)

// ValidRole reports whether role is one of the membership roles.
func ValidRole(role string) bool {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case RoleOwner, RoleAdmin, RoleApprover, RoleReviewer, RoleMember:
		return true
	default:
		return false
	}
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, orgID snowflake.ID) (*OrganizationResponse, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListResponseItem, error)
	AddMember(ctx context.Context, orgID snowflake.ID, req AddMemberRequest) (*MemberResponse, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberResponse, error)
	ListMembersByRoles(ctx context.Context, orgID snowflake.ID, roles []string) ([]MemberContact, error)
	IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
	MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error)
	EnsureUser(ctx context.Context, req EnsureUserRequest) error
	GetUser(ctx context.Context, userID snowflake.ID) (*User, error)
}

type CreateOrganizationRequest struct {
	Name        string
	CodePrefix  string
	CodePadding int
}

type AddMemberRequest struct {
	UserID      snowflake.ID
	Email       string
	DisplayName string
	Role        string
}

type EnsureUserRequest struct {
	UserID      snowflake.ID
	Email       string
	DisplayName string
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type OrganizationListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

var (
	ErrInvalidName         = errs.New(errs.ErrInvalidArgument, "invalid_name")
	ErrInvalidUser         = errs.New(errs.ErrInvalidArgument, "invalid_user")
	ErrInvalidOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrInvalidEmail        = errs.New(errs.ErrInvalidArgument, "invalid_email")
	ErrInvalidRole         = errs.New(errs.ErrInvalidArgument, "invalid_role")
	ErrOrganizationMissing = errs.New(errs.ErrNotFound, "organization_not_found")
	ErrUserNotFound        = errs.New(errs.ErrNotFound, "user_not_found")
	ErrMemberExists        = errs.New(errs.ErrConflict, "member_exists")
	ErrNotMember           = errs.New(errs.ErrForbidden, "not_a_member")
)
