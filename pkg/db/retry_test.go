package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryOnConflictRetriesUntilSuccess(t *testing.T) {
	calls := 0
	conflicts := 0
	got, err := RetryOnConflict(context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &pgconn.PgError{Code: "40001"}
		}
		return "ITEM-0001", nil
	}, func(int, error) { conflicts++ })

	require.NoError(t, err)
	assert.Equal(t, "ITEM-0001", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, conflicts)
}

func TestRetryOnConflictGivesUpAfterMaxTries(t *testing.T) {
	calls := 0
	_, err := RetryOnConflict(context.Background(), func() (int, error) {
		calls++
		return 0, &pgconn.PgError{Code: "40P01"}
	}, nil)

	require.Error(t, err)
	assert.True(t, IsConflictErr(err))
	assert.Equal(t, ConflictMaxTries, calls)
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := RetryOnConflict(context.Background(), func() (int, error) {
		calls++
		return 0, boom
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
