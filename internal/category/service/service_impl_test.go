package service_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/category/domain"
	"github.com/smallbiznis/procura/internal/category/repository"
	"github.com/smallbiznis/procura/internal/category/service"
	itemdomain "github.com/smallbiznis/procura/internal/item/domain"
	"github.com/smallbiznis/procura/internal/testkit"
	"github.com/smallbiznis/procura/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(env *testkit.Env) domain.Service {
	return service.NewService(service.Params{
		DB:    env.DB,
		Log:   env.Log,
		Repo:  repository.Provide(env.DB),
		GenID: env.Node,
		Clock: env.Clock,
		Audit: env.Audit,
	})
}

func TestCreateEnforcesUniquenessWithinOrg(t *testing.T) {
	env := testkit.New(t)
	svc := newService(env)
	ctx := t.Context()
	orgA := env.Org(t, "A", 1, nil)
	orgB := env.Org(t, "B", 2, nil)

	created, err := svc.Create(ctx, orgA, domain.CreateRequest{Code: "ofc", Name: "Office"})
	require.NoError(t, err)
	assert.Equal(t, "OFC", created.Code)
	assert.True(t, created.IsActive)

	_, err = svc.Create(ctx, orgA, domain.CreateRequest{Code: "OFC", Name: "Other"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = svc.Create(ctx, orgA, domain.CreateRequest{Code: "OF2", Name: "office"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	_, err = svc.Create(ctx, orgB, domain.CreateRequest{Code: "OFC", Name: "Office"})
	assert.NoError(t, err)

	_, err = svc.Create(ctx, orgA, domain.CreateRequest{Code: " ", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestCategoryOfAnotherOrgIsNotFound(t *testing.T) {
	env := testkit.New(t)
	svc := newService(env)
	ctx := t.Context()
	orgA := env.Org(t, "A", 1, nil)
	orgB := env.Org(t, "B", 2, nil)

	created, err := svc.Create(ctx, orgA, domain.CreateRequest{Code: "IT", Name: "IT"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, orgB, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Deactivate(ctx, orgB, created.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeactivateAndReactivate(t *testing.T) {
	env := testkit.New(t)
	svc := newService(env)
	ctx := t.Context()
	orgID := env.Org(t, "A", 1, nil)

	created, err := svc.Create(ctx, orgID, domain.CreateRequest{Code: "FUR", Name: "Furniture"})
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(ctx, orgID, created.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	active, err := svc.List(ctx, orgID, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.List(ctx, orgID, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	reactivated, err := svc.Reactivate(ctx, orgID, created.ID)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)
}

func TestDeleteDeactivatesReferencedCategory(t *testing.T) {
	env := testkit.New(t)
	svc := newService(env)
	ctx := t.Context()
	orgID := env.Org(t, "A", 1, nil)

	used, err := svc.Create(ctx, orgID, domain.CreateRequest{Code: "USED", Name: "Used"})
	require.NoError(t, err)
	unused, err := svc.Create(ctx, orgID, domain.CreateRequest{Code: "FREE", Name: "Free"})
	require.NoError(t, err)

	categoryID := used.ID
	require.NoError(t, env.DB.Create(&itemdomain.Item{
		ID:         snowflake.ID(500),
		OrgID:      orgID,
		Code:       "ITEM-0001",
		Name:       "Chair",
		CategoryID: &categoryID,
		CreatedBy:  1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}).Error)

	deleted, err := svc.Delete(ctx, orgID, used.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	stillThere, err := svc.Get(ctx, orgID, used.ID)
	require.NoError(t, err)
	assert.False(t, stillThere.IsActive)

	deleted, err = svc.Delete(ctx, orgID, unused.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = svc.Get(ctx, orgID, unused.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The code of a deleted category can be reused.
	_, err = svc.Create(ctx, orgID, domain.CreateRequest{Code: "FREE", Name: "Free"})
	assert.NoError(t, err)

	var audits int64
	require.NoError(t, env.DB.Model(&auditdomain.AuditLog{}).
		Where("org_id = ? AND target_type = ?", orgID, "category").
		Count(&audits).Error)
	assert.Equal(t, int64(2), audits)
}

func TestLockActiveGuardsItemInsert(t *testing.T) {
	env := testkit.New(t)
	svc := newService(env)
	ctx := t.Context()
	orgID := env.Org(t, "A", 1, nil)

	category, err := svc.Create(ctx, orgID, domain.CreateRequest{Code: "FUR", Name: "Furniture"})
	require.NoError(t, err)
	categoryID := category.ID

	// An item committed under the lock is seen by a later delete.
	require.NoError(t, env.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.LockActive(ctx, tx, orgID, categoryID); err != nil {
			return err
		}
		now := env.Clock.Now()
		return tx.Create(&itemdomain.Item{
			ID:         env.Node.Generate(),
			OrgID:      orgID,
			Code:       "ITEM-0001",
			Name:       "Chair",
			CategoryID: &categoryID,
			CreatedBy:  1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}).Error
	}))

	deleted, err := svc.Delete(ctx, orgID, categoryID)
	require.NoError(t, err)
	assert.False(t, deleted)

	err = env.DB.Transaction(func(tx *gorm.DB) error {
		_, err := svc.LockActive(ctx, tx, orgID, categoryID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInactive)

	gone, err := svc.Create(ctx, orgID, domain.CreateRequest{Code: "OLD", Name: "Old"})
	require.NoError(t, err)
	deleted, err = svc.Delete(ctx, orgID, gone.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	err = env.DB.Transaction(func(tx *gorm.DB) error {
		_, err := svc.LockActive(ctx, tx, orgID, gone.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	otherOrg := env.Org(t, "B", 2, nil)
	err = env.DB.Transaction(func(tx *gorm.DB) error {
		_, err := svc.LockActive(ctx, tx, otherOrg, categoryID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
