package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	categorydomain "github.com/smallbiznis/procura/internal/category/domain"
)

type createCategoryRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) CreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.categorySvc.Create(c.Request.Context(), currentOrgID(c), categorydomain.CreateRequest{
		Code: strings.TrimSpace(req.Code),
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCategories(c *gin.Context) {
	var query struct {
		IncludeInactive bool `form:"include_inactive"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.categorySvc.List(c.Request.Context(), currentOrgID(c), query.IncludeInactive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.categorySvc.Get(c.Request.Context(), currentOrgID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.categorySvc.Deactivate(c.Request.Context(), currentOrgID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.categorySvc.Reactivate(c.Request.Context(), currentOrgID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// DeleteCategory reports whether the category was removed or only deactivated.
func (s *Server) DeleteCategory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	deleted, err := s.categorySvc.Delete(c.Request.Context(), currentOrgID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": deleted, "deactivated": !deleted}})
}
