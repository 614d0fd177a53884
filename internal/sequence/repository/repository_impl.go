package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/sequence/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, counter domain.Counter) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO org_counters (org_id, prefix, next_number, padding, last_issued, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		counter.OrgID,
		counter.Prefix,
		counter.NextNumber,
		counter.Padding,
		counter.LastIssued,
		counter.CreatedAt,
		counter.UpdatedAt,
	).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Counter, error) {
	var counter domain.Counter
	err := db.WithContext(ctx).Where("org_id = ?", orgID).Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

// Allocate consumes next_number in one statement where the dialect supports
// UPDATE ... RETURNING, and under a row lock otherwise. Returns nil when the
// counter does not exist.
func (r *repo) Allocate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, now time.Time) (*domain.Issued, error) {
	if tx.Dialector.Name() == "mysql" {
		return r.allocateLocked(ctx, tx, orgID, now)
	}

	var issued domain.Issued
	res := tx.WithContext(ctx).Raw(
		`UPDATE org_counters
		 SET next_number = next_number + 1, last_issued = next_number, updated_at = ?
		 WHERE org_id = ?
		 RETURNING prefix, padding, last_issued AS number`,
		now,
		orgID,
	).Scan(&issued)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &issued, nil
}

// MySQL evaluates SET assignments left to right against updated values, so the
// issued number is read under FOR UPDATE and written explicitly.
func (r *repo) allocateLocked(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, now time.Time) (*domain.Issued, error) {
	var counter domain.Counter
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("org_id = ?", orgID).
		Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	err = tx.WithContext(ctx).Exec(
		`UPDATE org_counters SET next_number = ?, last_issued = ?, updated_at = ? WHERE org_id = ?`,
		counter.NextNumber+1,
		counter.NextNumber,
		now,
		orgID,
	).Error
	if err != nil {
		return nil, err
	}

	return &domain.Issued{
		Prefix:  counter.Prefix,
		Padding: counter.Padding,
		Number:  counter.NextNumber,
	}, nil
}

func (r *repo) SetNext(ctx context.Context, db *gorm.DB, orgID snowflake.ID, next int64, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE org_counters SET next_number = ?, updated_at = ? WHERE org_id = ? AND last_issued < ?`,
		next,
		now,
		orgID,
		next,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Configure(ctx context.Context, db *gorm.DB, orgID snowflake.ID, prefix string, padding int, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE org_counters SET prefix = ?, padding = ?, updated_at = ? WHERE org_id = ?`,
		prefix,
		padding,
		now,
		orgID,
	)
	return res.RowsAffected, res.Error
}
