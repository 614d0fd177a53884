package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/procura/pkg/errs"
)

var ErrStreamingUnsupported = errs.New(errs.ErrTransport, "streaming_unsupported")

type streamSession struct {
	SessionID string `json:"session_id"`
	OrgID     string `json:"org_id"`
}

// StreamNotifications keeps a live session open for the caller with the current
// organization selected. The first event names the session so the client can
// switch its organization later.
func (s *Server) StreamNotifications(c *gin.Context) {
	userID := currentUserID(c)
	orgID := currentOrgID(c)

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrStreamingUnsupported)
		return
	}

	session := s.hub.Subscribe(userID, orgID)
	defer session.Close()

	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	if err := writeStreamEvent(writer, "session", streamSession{
		SessionID: strconv.FormatUint(session.ID(), 10),
		OrgID:     orgID.String(),
	}); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-session.Events():
			if !open {
				return
			}
			if !session.Current(event) {
				continue
			}
			if err := writeStreamEvent(writer, event.Type, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type switchStreamOrganizationRequest struct {
	OrgID string `json:"org_id"`
}

// SwitchStreamOrganization changes the organization a live session receives events for.
func (s *Server) SwitchStreamOrganization(c *gin.Context) {
	sessionID, err := strconv.ParseUint(strings.TrimSpace(c.Param("session_id")), 10, 64)
	if err != nil {
		AbortWithError(c, newValidationError("session_id", "invalid_session_id", "invalid session_id"))
		return
	}

	var req switchStreamOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	target, err := parseID(req.OrgID)
	if err != nil {
		AbortWithError(c, newValidationError("org_id", "invalid_organization", "invalid org_id"))
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	member, err := s.organizationSvc.IsMember(ctx, target, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !member {
		AbortWithError(c, ErrNotMember)
		return
	}

	if err := s.hub.SwitchOrg(userID, sessionID, target); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": streamSession{
		SessionID: strconv.FormatUint(sessionID, 10),
		OrgID:     target.String(),
	}})
}

func writeStreamEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
