package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/pkg/db/pagination"
)

func (s *Server) ListNotifications(c *gin.Context) {
	var query struct {
		pagination.Pagination
		UnreadOnly bool `form:"unread_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, pageInfo, err := s.notificationSvc.List(c.Request.Context(), currentUserID(c), currentOrgID(c), notificationdomain.ListRequest{
		Pagination: query.Pagination,
		UnreadOnly: query.UnreadOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp, "page_info": pageInfo})
}

func (s *Server) UnreadNotificationCount(c *gin.Context) {
	count, err := s.notificationSvc.UnreadCount(c.Request.Context(), currentUserID(c), currentOrgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"unread": count}})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.notificationSvc.MarkRead(c.Request.Context(), currentUserID(c), currentOrgID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteNotification(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.notificationSvc.Delete(c.Request.Context(), currentUserID(c), currentOrgID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	updated, err := s.notificationSvc.MarkAllRead(c.Request.Context(), currentUserID(c), currentOrgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": updated}})
}

func (s *Server) ClearAllNotifications(c *gin.Context) {
	deleted, err := s.notificationSvc.ClearAll(c.Request.Context(), currentUserID(c), currentOrgID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": deleted}})
}

type customNotificationRequest struct {
	Recipients     []string `json:"recipients"`
	Title          string   `json:"title"`
	Message        string   `json:"message"`
	Link           *string  `json:"link"`
	TemplateID     string   `json:"template_id"`
	SubjectID      string   `json:"subject_id"`
	IdempotencyKey string   `json:"idempotency_key"`
}

func (s *Server) SendCustomNotification(c *gin.Context) {
	var req customNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	recipients := make([]snowflake.ID, 0, len(req.Recipients))
	for _, raw := range req.Recipients {
		id, err := parseID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("recipients", "invalid_recipient", "invalid recipient"))
			return
		}
		recipients = append(recipients, id)
	}
	subjectID, err := parseOptionalID(req.SubjectID)
	if err != nil {
		AbortWithError(c, newValidationError("subject_id", "invalid_subject_id", "invalid subject_id"))
		return
	}

	ids, err := s.notificationSvc.Notify(c.Request.Context(), notificationdomain.Event{
		OrgID:          currentOrgID(c),
		Kind:           notificationdomain.KindCustom,
		ActorUserID:    currentUserID(c),
		SubjectID:      subjectID,
		Recipients:     recipients,
		Title:          strings.TrimSpace(req.Title),
		Message:        strings.TrimSpace(req.Message),
		Link:           req.Link,
		TemplateID:     strings.TrimSpace(req.TemplateID),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	deliveryErr, partial := notificationdomain.AsDeliveryError(err)
	if err != nil && !partial {
		AbortWithError(c, err)
		return
	}

	body := gin.H{"data": gin.H{"notification_ids": ids}}
	if partial {
		body["notification_error"] = notificationErrorPayload(deliveryErr)
	}
	c.JSON(http.StatusCreated, body)
}
