package service_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/testkit"
	"github.com/smallbiznis/procura/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProvisionsOwnerAndCounter(t *testing.T) {
	env := testkit.New(t)
	ctx := t.Context()
	owner := snowflake.ID(1001)
	env.User(t, owner)

	org, err := env.Organizations.Create(ctx, owner, domain.CreateOrganizationRequest{
		Name:        "Alpha Supplies",
		CodePrefix:  "item",
		CodePadding: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "alpha-supplies", org.Slug)

	orgID, err := snowflake.ParseString(org.ID)
	require.NoError(t, err)

	role, err := env.Organizations.MemberRole(ctx, orgID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)

	counter, err := env.Sequences.Get(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "ITEM", counter.Prefix)
	assert.Equal(t, 3, counter.Padding)
	assert.Equal(t, int64(1), counter.NextNumber)
}

func TestCreateRollsBackOnInvalidCounterSettings(t *testing.T) {
	env := testkit.New(t)
	ctx := t.Context()
	owner := snowflake.ID(1002)

	_, err := env.Organizations.Create(ctx, owner, domain.CreateOrganizationRequest{
		Name:       "Broken",
		CodePrefix: "bad-prefix",
	})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	orgs, err := env.Organizations.ListOrganizationsByUser(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, orgs)
}

func TestCreateDisambiguatesSlug(t *testing.T) {
	env := testkit.New(t)
	ctx := t.Context()

	first, err := env.Organizations.Create(ctx, 1, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	second, err := env.Organizations.Create(ctx, 2, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, "acme", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.Contains(t, second.Slug, "acme-")
}

func TestCreateValidatesInput(t *testing.T) {
	env := testkit.New(t)
	ctx := t.Context()

	_, err := env.Organizations.Create(ctx, 0, domain.CreateOrganizationRequest{Name: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = env.Organizations.Create(ctx, 1, domain.CreateOrganizationRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestAddMemberAndListByRoles(t *testing.T) {
	env := testkit.New(t)
	ctx := t.Context()
	orgID := env.Org(t, "Beta", 10, map[snowflake.ID]string{
		11: domain.RoleApprover,
		12: domain.RoleMember,
		13: "reviewer",
	})

	reviewers, err := env.Organizations.ListMembersByRoles(ctx, orgID, []string{"owner", "approver", "reviewer"})
	require.NoError(t, err)

	ids := make([]snowflake.ID, 0, len(reviewers))
	for _, member := range reviewers {
		ids = append(ids, member.UserID)
		assert.Equal(t, testkit.Email(member.UserID), member.Email)
	}
	assert.ElementsMatch(t, []snowflake.ID{10, 11, 13}, ids)

	_, err = env.Organizations.AddMember(ctx, orgID, domain.AddMemberRequest{
		UserID: 12,
		Email:  testkit.Email(12),
		Role:   domain.RoleAdmin,
	})
	assert.ErrorIs(t, err, domain.ErrMemberExists)

	_, err = env.Organizations.AddMember(ctx, orgID, domain.AddMemberRequest{
		UserID: 14,
		Email:  "nobody",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = env.Organizations.AddMember(ctx, orgID, domain.AddMemberRequest{
		UserID: 14,
		Email:  testkit.Email(14),
		Role:   "superuser",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestMembershipIsPerOrganization(t *testing.T) {
	env := testkit.New(t)
	ctx := t.Context()
	orgA := env.Org(t, "A", 20, map[snowflake.ID]string{21: domain.RoleMember})
	orgB := env.Org(t, "B", 30, nil)

	ok, err := env.Organizations.IsMember(ctx, orgA, 21)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.Organizations.IsMember(ctx, orgB, 21)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.Organizations.MemberRole(ctx, orgB, 21)
	assert.ErrorIs(t, err, domain.ErrNotMember)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	orgs, err := env.Organizations.ListOrganizationsByUser(ctx, 21)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, orgA.String(), orgs[0].ID)
}
