package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/procura/internal/audit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert appends one row. Audit rows are never updated.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List returns at most filter.Limit+1 rows, newest first, so the caller can
// tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	conds := []clause.Expression{clause.Eq{Column: "org_id", Value: filter.OrgID}}
	for _, f := range [...]struct{ column, value string }{
		{"action", filter.Action},
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
	} {
		if value := strings.TrimSpace(f.value); value != "" {
			conds = append(conds, clause.Eq{Column: f.column, Value: value})
		}
	}
	if filter.StartAt != nil {
		conds = append(conds, clause.Gte{Column: "created_at", Value: filter.StartAt.UTC()})
	}
	if filter.EndAt != nil {
		conds = append(conds, clause.Lte{Column: "created_at", Value: filter.EndAt.UTC()})
	}
	if c := filter.Cursor; c != nil {
		conds = append(conds, clause.Or(
			clause.Lt{Column: "created_at", Value: c.CreatedAt},
			clause.And(
				clause.Eq{Column: "created_at", Value: c.CreatedAt},
				clause.Lt{Column: "id", Value: c.ID},
			),
		))
	}

	stmt := db.WithContext(ctx).Model(&domain.AuditLog{}).
		Clauses(clause.Where{Exprs: conds}).
		Order("created_at DESC, id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
