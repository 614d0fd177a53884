package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

const (
	ActionSequenceSetNext        = "sequence.set_next"
	ActionSequenceConfigure      = "sequence.configure"
	ActionRequisitionSubmitted   = "requisition.submitted"
	ActionRequisitionApproved    = "requisition.approved"
	ActionRequisitionRejected    = "requisition.rejected"
	ActionDeliveryFailed         = "requisition.delivery_failed"
	ActionEmailJobRetriggered    = "email_job.retriggered"
	ActionCategoryDeactivated    = "category.deactivated"
	ActionCategoryReactivated    = "category.reactivated"
	ActionCategoryDeleted        = "category.deleted"
	ActionMemberAdded            = "organization.member_added"
	ActionCustomNotificationSent = "notification.custom_sent"
)

// AuditLog is an append-only record of an administrative or workflow action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"not null;index:idx_audit_logs_org_created,priority:1" json:"org_id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_audit_logs_org_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
