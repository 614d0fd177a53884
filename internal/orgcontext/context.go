package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// OrgContextKey is the request context key for the selected organization ID.
type OrgContextKey struct{}

// UserContextKey is the request context key for the authenticated user ID.
type UserContextKey struct{}

// WithOrgID stores the org ID in the context.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// WithUserID stores the user ID in the context.
func WithUserID(ctx context.Context, userID snowflake.ID) context.Context {
	return context.WithValue(ctx, UserContextKey{}, userID)
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	if id, ok := idFromValue(ctx.Value(OrgContextKey{})); ok {
		return id, true
	}
	// gin.Context stores values under plain string keys.
	return idFromValue(ctx.Value("org_id"))
}

// UserIDFromContext returns the user ID from context, if set.
func UserIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	if id, ok := idFromValue(ctx.Value(UserContextKey{})); ok {
		return id, true
	}
	return idFromValue(ctx.Value("user_id"))
}

func idFromValue(value any) (snowflake.ID, bool) {
	switch typed := value.(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}
