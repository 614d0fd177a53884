package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/pkg/db/option"
	"gorm.io/gorm"
)

type orgScoped[T any] struct {
	db *gorm.DB
}

// ProvideStore returns a Repository over the table gorm maps T to.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &orgScoped[T]{db: db}
}

func (r *orgScoped[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return r
	}
	return &orgScoped[T]{db: tx}
}

func (r *orgScoped[T]) Find(ctx context.Context, orgID snowflake.ID, filter *T, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	if err := r.scope(ctx, orgID, filter, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *orgScoped[T]) FindOne(ctx context.Context, orgID snowflake.ID, filter *T, opts ...option.QueryOption) (*T, error) {
	var row T
	err := r.scope(ctx, orgID, filter, opts).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

func (r *orgScoped[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *orgScoped[T]) Update(ctx context.Context, orgID, id snowflake.ID, fields map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).Model(new(T)).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *orgScoped[T]) Delete(ctx context.Context, orgID, id snowflake.ID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(new(T))
	return res.RowsAffected, res.Error
}

func (r *orgScoped[T]) scope(ctx context.Context, orgID snowflake.ID, filter *T, opts []option.QueryOption) *gorm.DB {
	stmt := r.db.WithContext(ctx).Model(new(T)).Where("org_id = ?", orgID)
	if filter != nil {
		stmt = stmt.Where(filter)
	}
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt
}
