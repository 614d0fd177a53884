package orgcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestOrgAndUserRoundTrip(t *testing.T) {
	ctx := WithUserID(WithOrgID(context.Background(), snowflake.ID(42)), snowflake.ID(7))

	orgID, ok := OrgIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), orgID)

	userID, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(7), userID)
}

func TestMissingValues(t *testing.T) {
	_, ok := OrgIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserIDFromContext(WithUserID(context.Background(), 0))
	assert.False(t, ok)
}

func TestStringKeyFallback(t *testing.T) {
	ctx := context.WithValue(context.Background(), "org_id", "1234")
	orgID, ok := OrgIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(1234), orgID)
}
