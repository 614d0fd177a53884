// Package testkit wires real services over an in-memory SQLite database for package tests.
package testkit

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	auditrepository "github.com/smallbiznis/procura/internal/audit/repository"
	auditservice "github.com/smallbiznis/procura/internal/audit/service"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/migration"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/procura/internal/organization/domain"
	organizationrepository "github.com/smallbiznis/procura/internal/organization/repository"
	organizationservice "github.com/smallbiznis/procura/internal/organization/service"
	sequencedomain "github.com/smallbiznis/procura/internal/sequence/domain"
	sequencerepository "github.com/smallbiznis/procura/internal/sequence/repository"
	sequenceservice "github.com/smallbiznis/procura/internal/sequence/service"
	"github.com/smallbiznis/procura/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Env holds the shared collaborators most services depend on.
type Env struct {
	DB            *gorm.DB
	Log           *zap.Logger
	Node          *snowflake.Node
	Clock         *clock.FakeClock
	Config        config.Config
	Metrics       *metrics.Metrics
	Audit         auditdomain.Service
	Sequences     sequencedomain.Service
	Organizations organizationdomain.Service
}

func New(t *testing.T) *Env {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.NewTest(name)
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	env := &Env{
		DB:      conn,
		Log:     zap.NewNop(),
		Node:    node,
		Clock:   clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)),
		Metrics: metrics.NewNoop(),
		Config: config.Config{
			Sequence: config.SequenceConfig{DefaultPrefix: "ITEM", DefaultPadding: 4},
		},
	}

	env.Audit = auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   env.Log,
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: env.Clock,
	})
	env.Sequences = sequenceservice.NewService(sequenceservice.Params{
		DB:      conn,
		Log:     env.Log,
		Repo:    sequencerepository.Provide(),
		Audit:   env.Audit,
		Clock:   env.Clock,
		Config:  env.Config,
		Metrics: env.Metrics,
	})
	env.Organizations = organizationservice.NewService(organizationservice.Params{
		DB:        conn,
		Log:       env.Log,
		Repo:      organizationrepository.NewRepository(conn),
		GenID:     node,
		Clock:     env.Clock,
		Sequences: env.Sequences,
		Audit:     env.Audit,
	})

	return env
}

// Org creates an organization owned by owner and adds the given members as userID -> role.
func (e *Env) Org(t *testing.T, name string, owner snowflake.ID, members map[snowflake.ID]string) snowflake.ID {
	t.Helper()
	ctx := t.Context()

	e.User(t, owner)
	org, err := e.Organizations.Create(ctx, owner, organizationdomain.CreateOrganizationRequest{Name: name})
	require.NoError(t, err)
	orgID, err := snowflake.ParseString(org.ID)
	require.NoError(t, err)

	for userID, role := range members {
		_, err := e.Organizations.AddMember(ctx, orgID, organizationdomain.AddMemberRequest{
			UserID: userID,
			Email:  Email(userID),
			Role:   role,
		})
		require.NoError(t, err)
	}
	return orgID
}

// User mirrors a user profile with a deterministic email.
func (e *Env) User(t *testing.T, userID snowflake.ID) {
	t.Helper()
	require.NoError(t, e.Organizations.EnsureUser(t.Context(), organizationdomain.EnsureUserRequest{
		UserID: userID,
		Email:  Email(userID),
	}))
}

func Email(userID snowflake.ID) string {
	return "user" + userID.String() + "@example.com"
}
