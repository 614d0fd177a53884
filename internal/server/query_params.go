package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// pathID parses a snowflake path parameter, aborting the request when it is malformed.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return id, true
}

func parseOptionalID(raw string) (*snowflake.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseOptionalTime(raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
