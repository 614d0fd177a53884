package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/procura/internal/observability/context"
	organizationdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/orgcontext"
	"github.com/smallbiznis/procura/pkg/errs"
)

// Identity is established upstream; these headers are trusted as-is.
const (
	HeaderUser      = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderOrg       = "X-Org-ID"
)

var (
	ErrMissingIdentity     = errs.New(errs.ErrUnauthorized, "missing_identity")
	ErrMissingOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrNotMember           = errs.New(errs.ErrForbidden, "not_a_member")
)

// IdentityRequired resolves the calling user and mirrors the profile headers when present.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseID(c.GetHeader(HeaderUser))
		if err != nil {
			AbortWithError(c, ErrMissingIdentity)
			return
		}

		ctx := orgcontext.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithActor(ctx, "user", userID.String())
		c.Request = c.Request.WithContext(ctx)

		if email := strings.TrimSpace(c.GetHeader(HeaderUserEmail)); email != "" {
			if err := s.organizationSvc.EnsureUser(ctx, organizationdomain.EnsureUserRequest{
				UserID:      userID,
				Email:       email,
				DisplayName: strings.TrimSpace(c.GetHeader(HeaderUserName)),
			}); err != nil {
				AbortWithError(c, err)
				return
			}
		}

		c.Next()
	}
}

// OrgRequired resolves the current organization and verifies the caller belongs to it.
func (s *Server) OrgRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := parseID(c.GetHeader(HeaderOrg))
		if err != nil {
			AbortWithError(c, ErrMissingOrganization)
			return
		}

		ctx := c.Request.Context()
		userID, _ := orgcontext.UserIDFromContext(ctx)
		ok, err := s.organizationSvc.IsMember(ctx, orgID, userID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, ErrNotMember)
			return
		}

		c.Request = c.Request.WithContext(orgcontext.WithOrgID(ctx, orgID))
		c.Next()
	}
}

func currentUserID(c *gin.Context) snowflake.ID {
	userID, _ := orgcontext.UserIDFromContext(c.Request.Context())
	return userID
}

func currentOrgID(c *gin.Context) snowflake.ID {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())
	return orgID
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, errs.ErrInvalidArgument
	}
	return id, nil
}
