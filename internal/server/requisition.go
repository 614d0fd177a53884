package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	requisitiondomain "github.com/smallbiznis/procura/internal/requisition/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
)

type createRequisitionRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (s *Server) CreateRequisition(c *gin.Context) {
	var req createRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.requisitionSvc.Create(c.Request.Context(), currentOrgID(c), currentUserID(c), requisitiondomain.CreateRequest{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		Currency:    strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListRequisitions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, pageInfo, err := s.requisitionSvc.List(c.Request.Context(), currentOrgID(c), requisitiondomain.ListRequest{
		Pagination: query.Pagination,
		Status:     requisitiondomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp, "page_info": pageInfo})
}

func (s *Server) GetRequisition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.requisitionSvc.Get(c.Request.Context(), currentOrgID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitRequisition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := s.requisitionSvc.Submit(c.Request.Context(), currentOrgID(c), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeTransition(c, result)
}

type decisionRequest struct {
	Note string `json:"note"`
}

func (s *Server) ApproveRequisition(c *gin.Context) {
	s.decideRequisition(c, s.requisitionSvc.Approve)
}

func (s *Server) RejectRequisition(c *gin.Context) {
	s.decideRequisition(c, s.requisitionSvc.Reject)
}

type decideFunc func(ctx context.Context, orgID, userID, id snowflake.ID, req requisitiondomain.DecisionRequest) (*requisitiondomain.TransitionResult, error)

func (s *Server) decideRequisition(c *gin.Context, decide decideFunc) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req decisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := decide(c.Request.Context(), currentOrgID(c), currentUserID(c), id, requisitiondomain.DecisionRequest{
		Note: strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writeTransition(c, result)
}

// writeTransition reports a committed transition. A failed notification is
// surfaced next to the result rather than as an error status.
func writeTransition(c *gin.Context, result *requisitiondomain.TransitionResult) {
	body := gin.H{"data": result.Requisition}
	if payload := notificationErrorPayload(result.NotificationError); payload != nil {
		body["notification_error"] = payload
	}
	c.JSON(http.StatusOK, body)
}
