package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/errs"
	"gorm.io/gorm"
)

type Service interface {
	// Create issues the next organization code and stores the item in one transaction.
	Create(ctx context.Context, orgID, userID snowflake.ID, req CreateRequest) (*Item, error)
	Get(ctx context.Context, orgID, id snowflake.ID) (*Item, error)
	List(ctx context.Context, orgID snowflake.ID, req ListRequest) ([]Item, pagination.PageInfo, error)
}

type CreateRequest struct {
	Name       string
	Unit       string
	CategoryID *snowflake.ID
}

type ListRequest struct {
	pagination.Pagination
	CategoryID *snowflake.ID
	Query      string
}

type ListFilter struct {
	OrgID      snowflake.ID
	CategoryID *snowflake.ID
	Query      string
	Cursor     *pagination.Cursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *Item) error
	Get(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Item, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Item, error)
}

var (
	ErrInvalidOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrInvalidUser         = errs.New(errs.ErrInvalidArgument, "invalid_user")
	ErrInvalidName         = errs.New(errs.ErrInvalidArgument, "invalid_name")
	ErrInvalidUnit         = errs.New(errs.ErrInvalidArgument, "invalid_unit")
	ErrInvalidPageToken    = errs.New(errs.ErrInvalidArgument, "invalid_page_token")
	ErrNotFound            = errs.New(errs.ErrNotFound, "item_not_found")
	ErrDuplicateCode       = errs.New(errs.ErrConflict, "item_code_taken")
)
