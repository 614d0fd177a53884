package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic store for tables keyed by (org_id, id). Every read
// and write is constrained to a single organization.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, orgID snowflake.ID, filter *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, orgID snowflake.ID, filter *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// Update and Delete report the number of affected rows.
	Update(ctx context.Context, orgID, id snowflake.ID, fields map[string]any) (int64, error)
	Delete(ctx context.Context, orgID, id snowflake.ID) (int64, error)
}
