package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/errs"
	"gorm.io/gorm"
)

// Entry describes one audited action. The actor is taken from the request context.
type Entry struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, entry Entry) error
	// AuditLogTx writes the entry inside the caller's transaction.
	AuditLogTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidOrganization = errs.New(errs.ErrInvalidArgument, "invalid_organization")
	ErrInvalidPageToken    = errs.New(errs.ErrInvalidArgument, "invalid_page_token")
	ErrInvalidTimeRange    = errs.New(errs.ErrInvalidArgument, "invalid_time_range")
	ErrInvalidAction       = errs.New(errs.ErrInvalidArgument, "invalid_action")
)
