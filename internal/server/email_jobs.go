package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
)

func (s *Server) ListEmailJobs(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	jobs, pageInfo, err := s.notificationSvc.ListEmailJobs(c.Request.Context(), currentOrgID(c), notificationdomain.ListEmailJobsRequest{
		Pagination: query.Pagination,
		Status:     notificationdomain.EmailStatus(strings.ToLower(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": jobs, "page_info": pageInfo})
}

// RetriggerEmailJob puts a failed job back in the dispatch queue.
func (s *Server) RetriggerEmailJob(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	job, err := s.notificationSvc.RetriggerEmail(c.Request.Context(), currentOrgID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}
