package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/pkg/errs"
	"gorm.io/gorm"
)

type Service interface {
	// AllocateNext issues the next code in its own transaction, retrying store conflicts.
	AllocateNext(ctx context.Context, orgID snowflake.ID) (string, error)
	// AllocateNextTx issues the next code inside tx so the consumer row and the
	// counter commit together. Conflicts are returned to the caller, which owns the retry.
	AllocateNextTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (string, error)
	SetNext(ctx context.Context, orgID snowflake.ID, next int64) (*Counter, error)
	Configure(ctx context.Context, orgID snowflake.ID, req ConfigureRequest) (*Counter, error)
	Get(ctx context.Context, orgID snowflake.ID) (*Counter, error)
	// Provision creates the counter row inside the organization-creation transaction.
	Provision(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, prefix string, padding int) error
}

type ConfigureRequest struct {
	Prefix  *string
	Padding *int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, counter Counter) error
	Get(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Counter, error)
	Allocate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, now time.Time) (*Issued, error)
	SetNext(ctx context.Context, db *gorm.DB, orgID snowflake.ID, next int64, now time.Time) (int64, error)
	Configure(ctx context.Context, db *gorm.DB, orgID snowflake.ID, prefix string, padding int, now time.Time) (int64, error)
}

var (
	ErrCounterNotFound = errs.New(errs.ErrNotFound, "counter_not_found")
	ErrCounterExists   = errs.New(errs.ErrConflict, "counter_exists")
	ErrConflict        = errs.New(errs.ErrConflict, "allocation_conflict")
	ErrInvalidNext     = errs.New(errs.ErrInvalidArgument, "invalid_next_number")
	ErrInvalidPrefix   = errs.New(errs.ErrInvalidArgument, "invalid_prefix")
	ErrInvalidPadding  = errs.New(errs.ErrInvalidArgument, "invalid_padding")
	ErrInvalidOrg      = errs.New(errs.ErrInvalidArgument, "invalid_organization")
)
