package service_test

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	categorydomain "github.com/smallbiznis/procura/internal/category/domain"
	categoryrepository "github.com/smallbiznis/procura/internal/category/repository"
	categoryservice "github.com/smallbiznis/procura/internal/category/service"
	"github.com/smallbiznis/procura/internal/item/domain"
	"github.com/smallbiznis/procura/internal/item/repository"
	"github.com/smallbiznis/procura/internal/item/service"
	"github.com/smallbiznis/procura/internal/testkit"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env        *testkit.Env
	items      domain.Service
	categories categorydomain.Service
}

func newFixture(t *testing.T) *fixture {
	env := testkit.New(t)
	categories := categoryservice.NewService(categoryservice.Params{
		DB:    env.DB,
		Log:   env.Log,
		Repo:  categoryrepository.Provide(env.DB),
		GenID: env.Node,
		Clock: env.Clock,
		Audit: env.Audit,
	})
	items := service.NewService(service.Params{
		DB:         env.DB,
		Log:        env.Log,
		Repo:       repository.Provide(),
		GenID:      env.Node,
		Clock:      env.Clock,
		Sequences:  env.Sequences,
		Categories: categories,
		Metrics:    env.Metrics,
	})
	return &fixture{env: env, items: items, categories: categories}
}

func TestCreateIssuesSequentialCodes(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	orgID := f.env.Org(t, "Acme", 1, nil)

	first, err := f.items.Create(ctx, orgID, 1, domain.CreateRequest{Name: "Chair", Unit: "pcs"})
	require.NoError(t, err)
	second, err := f.items.Create(ctx, orgID, 1, domain.CreateRequest{Name: "Desk"})
	require.NoError(t, err)

	assert.Equal(t, "ITEM-0001", first.Code)
	assert.Equal(t, "ITEM-0002", second.Code)

	counter, err := f.env.Sequences.Get(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter.NextNumber)
}

func TestCreateConcurrentlyHasNoGapsOrDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	orgID := f.env.Org(t, "Acme", 1, nil)

	const workers = 12
	codes := make([]string, workers)
	errsOut := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item, err := f.items.Create(ctx, orgID, 1, domain.CreateRequest{Name: "Bolt"})
			errsOut[i] = err
			if err == nil {
				codes[i] = item.Code
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errsOut {
		require.NoError(t, err)
	}
	sort.Strings(codes)
	for i, code := range codes {
		assert.Equal(t, fmt.Sprintf("ITEM-%04d", i+1), code)
	}
}

func TestCreateAfterSetNextContinuesFromOverride(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	orgID := f.env.Org(t, "Acme", 1, nil)

	_, err := f.items.Create(ctx, orgID, 1, domain.CreateRequest{Name: "Chair"})
	require.NoError(t, err)

	_, err = f.env.Sequences.SetNext(ctx, orgID, 50)
	require.NoError(t, err)

	item, err := f.items.Create(ctx, orgID, 1, domain.CreateRequest{Name: "Desk"})
	require.NoError(t, err)
	assert.Equal(t, "ITEM-0050", item.Code)
}

func TestCodesAreIndependentPerOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	orgA := f.env.Org(t, "A", 1, nil)
	orgB := f.env.Org(t, "B", 2, nil)

	a, err := f.items.Create(ctx, orgA, 1, domain.CreateRequest{Name: "Chair"})
	require.NoError(t, err)
	b, err := f.items.Create(ctx, orgB, 2, domain.CreateRequest{Name: "Chair"})
	require.NoError(t, err)
	assert.Equal(t, a.Code, b.Code)

	_, err = f.items.Get(ctx, orgB, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateValidatesCategory(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	orgA := f.env.Org(t, "A", 1, nil)
	orgB := f.env.Org(t, "B", 2, nil)

	category, err := f.categories.Create(ctx, orgA, categorydomain.CreateRequest{Code: "FUR", Name: "Furniture"})
	require.NoError(t, err)

	categoryID := category.ID
	item, err := f.items.Create(ctx, orgA, 1, domain.CreateRequest{Name: "Chair", CategoryID: &categoryID})
	require.NoError(t, err)
	require.NotNil(t, item.CategoryID)
	assert.Equal(t, categoryID, *item.CategoryID)

	_, err = f.items.Create(ctx, orgB, 2, domain.CreateRequest{Name: "Chair", CategoryID: &categoryID})
	assert.ErrorIs(t, err, categorydomain.ErrNotFound)

	_, err = f.categories.Deactivate(ctx, orgA, categoryID)
	require.NoError(t, err)
	_, err = f.items.Create(ctx, orgA, 1, domain.CreateRequest{Name: "Stool", CategoryID: &categoryID})
	assert.ErrorIs(t, err, categorydomain.ErrInactive)

	removed, err := f.categories.Create(ctx, orgA, categorydomain.CreateRequest{Code: "OLD", Name: "Old"})
	require.NoError(t, err)
	deleted, err := f.categories.Delete(ctx, orgA, removed.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	removedID := removed.ID
	_, err = f.items.Create(ctx, orgA, 1, domain.CreateRequest{Name: "Desk", CategoryID: &removedID})
	assert.ErrorIs(t, err, categorydomain.ErrNotFound)

	// Rejected creates do not consume codes.
	next, err := f.items.Create(ctx, orgA, 1, domain.CreateRequest{Name: "Lamp"})
	require.NoError(t, err)
	assert.Equal(t, "ITEM-0002", next.Code)

	_, err = f.items.Create(ctx, orgA, 1, domain.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	orgID := f.env.Org(t, "Acme", 1, nil)

	for _, name := range []string{"Chair", "Desk", "Desk lamp"} {
		_, err := f.items.Create(ctx, orgID, 1, domain.CreateRequest{Name: name})
		require.NoError(t, err)
	}

	page, info, err := f.items.List(ctx, orgID, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, info.HasMore)
	assert.Equal(t, "ITEM-0003", page[0].Code)
	assert.Equal(t, "ITEM-0002", page[1].Code)

	rest, info, err := f.items.List(ctx, orgID, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.False(t, info.HasMore)
	assert.Equal(t, "ITEM-0001", rest[0].Code)

	matches, _, err := f.items.List(ctx, orgID, domain.ListRequest{Query: "desk"})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	_, _, err = f.items.List(ctx, orgID, domain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
