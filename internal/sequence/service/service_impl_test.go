package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	auditrepository "github.com/smallbiznis/procura/internal/audit/repository"
	auditservice "github.com/smallbiznis/procura/internal/audit/service"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	"github.com/smallbiznis/procura/internal/sequence/domain"
	"github.com/smallbiznis/procura/internal/sequence/format"
	"github.com/smallbiznis/procura/internal/sequence/repository"
	pkgdb "github.com/smallbiznis/procura/pkg/db"
	"github.com/smallbiznis/procura/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db  *gorm.DB
	svc *Service
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := pkgdb.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Counter{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: fake,
	})

	svc := NewService(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    repository.Provide(),
		Audit:   audit,
		Clock:   fake,
		Config:  config.Config{Sequence: config.SequenceConfig{DefaultPrefix: "ITEM", DefaultPadding: 4}},
		Metrics: metrics.NewNoop(),
	}).(*Service)

	return testEnv{db: conn, svc: svc}
}

func (e testEnv) provision(t *testing.T, orgID snowflake.ID, prefix string, padding int) {
	t.Helper()
	require.NoError(t, e.db.Transaction(func(tx *gorm.DB) error {
		return e.svc.Provision(context.Background(), tx, orgID, prefix, padding)
	}))
}

func TestAllocateNextFormatsAndAdvances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := snowflake.ID(100)
	env.provision(t, orgID, "ITEM", 3)

	_, err := env.svc.SetNext(ctx, orgID, 7)
	require.NoError(t, err)

	code, err := env.svc.AllocateNext(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "ITEM-007", code)

	counter, err := env.svc.Get(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), counter.NextNumber)
	assert.Equal(t, int64(7), counter.LastIssued)
}

func TestAllocateNextReturnsNumberBeforeIncrement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := snowflake.ID(101)
	env.provision(t, orgID, "", 0)

	for i := 0; i < 5; i++ {
		before, err := env.svc.Get(ctx, orgID)
		require.NoError(t, err)

		code, err := env.svc.AllocateNext(ctx, orgID)
		require.NoError(t, err)

		n, err := format.ParseNumber(code)
		require.NoError(t, err)
		assert.Equal(t, before.NextNumber, n)
	}

	code, err := env.svc.AllocateNext(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "ITEM-0006", code)
}

func TestAllocateNextConcurrentIsContiguous(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := snowflake.ID(102)
	env.provision(t, orgID, "PO", 0)

	const workers = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := env.svc.AllocateNext(ctx, orgID)
			if !assert.NoError(t, err) {
				return
			}
			n, err := format.ParseNumber(code)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, workers)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		assert.Equal(t, int64(i+1), n)
	}
}

func TestAllocationsAreIsolatedPerOrganization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provision(t, 1, "A", 2)
	env.provision(t, 2, "B", 2)

	a1, err := env.svc.AllocateNext(ctx, 1)
	require.NoError(t, err)
	a2, err := env.svc.AllocateNext(ctx, 1)
	require.NoError(t, err)
	b1, err := env.svc.AllocateNext(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, "A-01", a1)
	assert.Equal(t, "A-02", a2)
	assert.Equal(t, "B-01", b1)
}

func TestAllocateNextWithoutCounterIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AllocateNext(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrCounterNotFound)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = env.svc.SetNext(context.Background(), 999, 3)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSetNextRejectsReuseOfIssuedNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := snowflake.ID(103)
	env.provision(t, orgID, "ITEM", 3)

	for i := 0; i < 9; i++ {
		_, err := env.svc.AllocateNext(ctx, orgID)
		require.NoError(t, err)
	}

	before, err := env.svc.Get(ctx, orgID)
	require.NoError(t, err)
	require.Equal(t, int64(9), before.LastIssued)

	for _, next := range []int64{0, -1, 5, 9} {
		_, err = env.svc.SetNext(ctx, orgID, next)
		assert.ErrorIs(t, err, domain.ErrInvalidNext, "next=%d", next)
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	}

	after, err := env.svc.Get(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, before.NextNumber, after.NextNumber)
	assert.Equal(t, before.LastIssued, after.LastIssued)

	updated, err := env.svc.SetNext(ctx, orgID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), updated.NextNumber)
}

func TestSetNextIsAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := snowflake.ID(104)
	env.provision(t, orgID, "ITEM", 3)

	_, err := env.svc.SetNext(ctx, orgID, 50)
	require.NoError(t, err)

	var logs []auditdomain.AuditLog
	require.NoError(t, env.db.Where("org_id = ? AND action = ?", orgID, auditdomain.ActionSequenceSetNext).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "50", fmt.Sprint(logs[0].Metadata["next_number"]))
}

func TestConfigureValidatesPrefixAndPadding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := snowflake.ID(105)
	env.provision(t, orgID, "ITEM", 3)

	bad := "it-em"
	_, err := env.svc.Configure(ctx, orgID, domain.ConfigureRequest{Prefix: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidPrefix)

	tooWide := 19
	_, err = env.svc.Configure(ctx, orgID, domain.ConfigureRequest{Padding: &tooWide})
	assert.ErrorIs(t, err, domain.ErrInvalidPadding)

	prefix := "sku"
	padding := 5
	counter, err := env.svc.Configure(ctx, orgID, domain.ConfigureRequest{Prefix: &prefix, Padding: &padding})
	require.NoError(t, err)
	assert.Equal(t, "SKU", counter.Prefix)
	assert.Equal(t, 5, counter.Padding)

	code, err := env.svc.AllocateNext(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "SKU-00001", code)
}

func TestProvisionTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.provision(t, 106, "ITEM", 3)

	err := env.db.Transaction(func(tx *gorm.DB) error {
		return env.svc.Provision(context.Background(), tx, 106, "ITEM", 3)
	})
	assert.ErrorIs(t, err, domain.ErrCounterExists)
}

func TestAllocateNextTxRollsBackWithCaller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := snowflake.ID(107)
	env.provision(t, orgID, "ITEM", 3)

	_ = env.db.Transaction(func(tx *gorm.DB) error {
		code, err := env.svc.AllocateNextTx(ctx, tx, orgID)
		require.NoError(t, err)
		assert.Equal(t, "ITEM-001", code)
		return assert.AnError
	})

	code, err := env.svc.AllocateNext(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "ITEM-001", code)
}
