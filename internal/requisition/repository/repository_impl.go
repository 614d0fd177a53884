package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/requisition/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.Requisition) error {
	return db.WithContext(ctx).Create(req).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Requisition, error) {
	var req domain.Requisition
	err := db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Requisition, error) {
	stmt := db.WithContext(ctx).Model(&domain.Requisition{}).Where("org_id = ?", filter.OrgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	var rows []domain.Requisition
	err := stmt.Order("created_at desc, id desc").Limit(filter.Limit).Find(&rows).Error
	return rows, err
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from domain.Status, updates map[string]any) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Requisition{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgID, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}
