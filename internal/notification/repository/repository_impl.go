package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LoadSubject(ctx context.Context, db *gorm.DB, orgID, subjectID snowflake.ID) (*domain.Subject, error) {
	var rows []domain.Subject
	err := db.WithContext(ctx).
		Table("requisitions AS r").
		Select(`r.id AS requisition_id, r.org_id AS org_id, o.name AS organization_name,
			r.title AS title, r.amount AS amount, r.currency AS currency,
			r.requester_id AS requester_id, r.decision_note AS decision_note`).
		Joins("JOIN organizations o ON o.id = r.org_id").
		Where("r.id = ? AND r.org_id = ?", subjectID, orgID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) OrganizationName(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (string, error) {
	var names []string
	err := db.WithContext(ctx).
		Table("organizations").
		Where("id = ?", orgID).
		Limit(1).
		Pluck("name", &names).Error
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[0], nil
}

func (r *repo) Recipient(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Recipient, error) {
	var rows []domain.Recipient
	err := db.WithContext(ctx).
		Table("users").
		Select("id AS user_id, email, display_name").
		Where("id = ?", userID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) InsertIgnoreDuplicates(ctx context.Context, db *gorm.DB, rows []domain.Notification) ([]domain.Notification, error) {
	inserted := make([]domain.Notification, 0, len(rows))
	for i := range rows {
		row := rows[i]
		result := db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "org_id"}, {Name: "recipient_user_id"}, {Name: "dedupe_key"}},
				DoNothing: true,
			}).
			Create(&row)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			inserted = append(inserted, row)
		}
	}
	return inserted, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID, orgID, id snowflake.ID) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("id = ? AND recipient_user_id = ? AND org_id = ?", id, userID, orgID).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repo) GetInOrg(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Notification, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_user_id = ? AND org_id = ?", filter.RecipientUserID, filter.OrgID)
	if filter.UnreadOnly {
		stmt = stmt.Where("is_read = ?", false)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	var rows []domain.Notification
	err := stmt.Order("created_at desc, id desc").Limit(filter.Limit).Find(&rows).Error
	return rows, err
}

func (r *repo) CountUnread(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_user_id = ? AND org_id = ? AND is_read = ?", userID, orgID, false).
		Count(&count).Error
	return count, err
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, userID, orgID, id snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_user_id = ? AND org_id = ?", id, userID, orgID).
		Updates(map[string]any{"is_read": true, "read_at": gorm.Expr("COALESCE(read_at, ?)", now)})
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID, orgID, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).
		Where("id = ? AND recipient_user_id = ? AND org_id = ?", id, userID, orgID).
		Delete(&domain.Notification{})
	return result.RowsAffected, result.Error
}

func (r *repo) MarkAllRead(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_user_id = ? AND org_id = ? AND is_read = ?", userID, orgID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	return result.RowsAffected, result.Error
}

func (r *repo) ClearAll(ctx context.Context, db *gorm.DB, userID, orgID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).
		Where("recipient_user_id = ? AND org_id = ?", userID, orgID).
		Delete(&domain.Notification{})
	return result.RowsAffected, result.Error
}

func (r *repo) InsertEmailJob(ctx context.Context, db *gorm.DB, job *domain.EmailJob) error {
	return db.WithContext(ctx).Create(job).Error
}

func (r *repo) GetEmailJob(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.EmailJob, error) {
	var job domain.EmailJob
	err := db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repo) ListEmailJobs(ctx context.Context, db *gorm.DB, filter domain.EmailJobFilter) ([]domain.EmailJob, error) {
	stmt := db.WithContext(ctx).Model(&domain.EmailJob{}).Where("org_id = ?", filter.OrgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	var jobs []domain.EmailJob
	err := stmt.Order("created_at desc, id desc").Limit(filter.Limit).Find(&jobs).Error
	return jobs, err
}

func (r *repo) ListPendingEmailJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.EmailJob, error) {
	var jobs []domain.EmailJob
	err := db.WithContext(ctx).
		Where("status = ?", domain.EmailPending).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *repo) FailStaleEmailJobs(ctx context.Context, db *gorm.DB, before, now time.Time, reason string) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.EmailJob{}).
		Where("status = ? AND updated_at < ?", domain.EmailSending, before).
		Updates(map[string]any{
			"status":     domain.EmailFailed,
			"last_error": reason,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) TransitionEmailJob(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from domain.EmailStatus, updates map[string]any) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.EmailJob{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgID, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}
