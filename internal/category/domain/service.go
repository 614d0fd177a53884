package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/pkg/errs"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, orgID snowflake.ID, req CreateRequest) (*Category, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Category, error)
	List(ctx context.Context, orgID snowflake.ID, includeInactive bool) ([]Category, error)
	Deactivate(ctx context.Context, orgID, id snowflake.ID) (*Category, error)
	Reactivate(ctx context.Context, orgID, id snowflake.ID) (*Category, error)
	// Delete soft-deletes an unreferenced category. Referenced categories are
	// deactivated instead and deleted is false.
	Delete(ctx context.Context, orgID, id snowflake.ID) (deleted bool, err error)
	// LockActive locks an active category of orgID inside tx so it cannot be
	// deactivated or deleted until tx ends.
	LockActive(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*Category, error)
}

type CreateRequest struct {
	Code string
	Name string
}

var (
	ErrInvalidOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrInvalidCode         = errs.New(errs.ErrInvalidArgument, "invalid_code")
	ErrInvalidName         = errs.New(errs.ErrInvalidArgument, "invalid_name")
	ErrNotFound            = errs.New(errs.ErrNotFound, "category_not_found")
	ErrDuplicateCode       = errs.New(errs.ErrConflict, "category_code_taken")
	ErrDuplicateName       = errs.New(errs.ErrConflict, "category_name_taken")
	ErrInactive            = errs.New(errs.ErrInvalidArgument, "category_inactive")
)
