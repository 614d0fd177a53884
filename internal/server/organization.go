package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/procura/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name        string `json:"name"`
	CodePrefix  string `json:"code_prefix"`
	CodePadding int    `json:"code_padding"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), currentUserID(c), organizationdomain.CreateOrganizationRequest{
		Name:        strings.TrimSpace(req.Name),
		CodePrefix:  strings.TrimSpace(req.CodePrefix),
		CodePadding: req.CodePadding,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListOrganizations(c *gin.Context) {
	resp, err := s.organizationSvc.ListOrganizationsByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCurrentOrganization(c *gin.Context) {
	resp, err := s.organizationSvc.GetByID(c.Request.Context(), currentOrgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type addMemberRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (s *Server) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseID(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "invalid user_id"))
		return
	}

	resp, err := s.organizationSvc.AddMember(c.Request.Context(), currentOrgID(c), organizationdomain.AddMemberRequest{
		UserID:      userID,
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        strings.TrimSpace(req.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListMembers(c *gin.Context) {
	resp, err := s.organizationSvc.ListMembers(c.Request.Context(), currentOrgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
