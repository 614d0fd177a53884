package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/item/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Item, error) {
	var item domain.Item
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Item, error) {
	stmt := db.WithContext(ctx).Model(&domain.Item{}).Where("org_id = ?", filter.OrgID)
	if filter.CategoryID != nil {
		stmt = stmt.Where("category_id = ?", *filter.CategoryID)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		stmt = stmt.Where("(LOWER(name) LIKE ? OR LOWER(code) LIKE ?)", like, like)
	}
	if filter.Cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, filter.Cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		cursorID, err := snowflake.ParseString(filter.Cursor.ID)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))", createdAt, createdAt, cursorID)
	}

	var items []domain.Item
	err := stmt.Order("created_at DESC").Order("id DESC").Limit(filter.Limit).Find(&items).Error
	return items, err
}
