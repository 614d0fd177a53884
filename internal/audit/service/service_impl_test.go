package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/audit/repository"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/orgcontext"
	"github.com/smallbiznis/procura/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	}).(*Service)
	return svc, fake
}

func TestAuditLogResolvesActorAndMasksEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := orgcontext.WithUserID(context.Background(), snowflake.ID(77))

	err := svc.AuditLog(ctx, auditdomain.Entry{
		OrgID:      snowflake.ID(10),
		Action:     auditdomain.ActionEmailJobRetriggered,
		TargetType: "email_job",
		TargetID:   "99",
		Metadata:   map[string]any{"recipient_email": "alice@example.com"},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: 10})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	assert.Equal(t, "a****@example.com", entry.Metadata["recipient_email"])
}

func TestAuditLogRequiresActionAndOrg(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AuditLog(context.Background(), auditdomain.Entry{OrgID: 1})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	err = svc.AuditLog(context.Background(), auditdomain.Entry{Action: "x"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}

func TestListIsOrgScopedAndPaginated(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, auditdomain.Entry{OrgID: 1, Action: "a"}))
		fake.Advance(time.Second)
	}
	require.NoError(t, svc.AuditLog(ctx, auditdomain.Entry{OrgID: 2, Action: "a"}))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{OrgID: 1, Pagination: pagePagination(2)})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{OrgID: 1, Pagination: pagePagination(2, first.NextPageToken)})
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	for _, entry := range append(first.AuditLogs, second.AuditLogs...) {
		assert.Equal(t, snowflake.ID(1), entry.OrgID)
	}
}
