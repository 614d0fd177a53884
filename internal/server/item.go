package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	itemdomain "github.com/smallbiznis/procura/internal/item/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
)

type createItemRequest struct {
	Name       string `json:"name"`
	Unit       string `json:"unit"`
	CategoryID string `json:"category_id"`
}

func (s *Server) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	categoryID, err := parseOptionalID(req.CategoryID)
	if err != nil {
		AbortWithError(c, newValidationError("category_id", "invalid_category_id", "invalid category_id"))
		return
	}

	resp, err := s.itemSvc.Create(c.Request.Context(), currentOrgID(c), currentUserID(c), itemdomain.CreateRequest{
		Name:       strings.TrimSpace(req.Name),
		Unit:       strings.TrimSpace(req.Unit),
		CategoryID: categoryID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListItems(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CategoryID string `form:"category_id"`
		Query      string `form:"q"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	categoryID, err := parseOptionalID(query.CategoryID)
	if err != nil {
		AbortWithError(c, newValidationError("category_id", "invalid_category_id", "invalid category_id"))
		return
	}

	items, pageInfo, err := s.itemSvc.List(c.Request.Context(), currentOrgID(c), itemdomain.ListRequest{
		Pagination: query.Pagination,
		CategoryID: categoryID,
		Query:      strings.TrimSpace(query.Query),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": pageInfo})
}

func (s *Server) GetItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.itemSvc.Get(c.Request.Context(), currentOrgID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
