package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeOrgActionWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgActionWithContext(c *gin.Context, object string, action string) error {
	userID := currentUserID(c)
	if userID == 0 {
		return ErrMissingIdentity
	}
	orgID := currentOrgID(c)
	if orgID == 0 {
		return ErrMissingOrganization
	}

	return s.authzSvc.Authorize(
		c.Request.Context(),
		fmt.Sprintf("user:%s", userID.String()),
		orgID.String(),
		strings.TrimSpace(object),
		strings.TrimSpace(action),
	)
}
