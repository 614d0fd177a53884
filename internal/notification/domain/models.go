package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindApproved  Kind = "approved"
	KindRejected  Kind = "rejected"
	KindCustom    Kind = "custom"
)

// Notification belongs to exactly one organization and one recipient.
type Notification struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"not null;uniqueIndex:ux_notifications_dedupe,priority:1;index:idx_notifications_inbox,priority:2" json:"org_id"`
	RecipientUserID snowflake.ID  `gorm:"not null;uniqueIndex:ux_notifications_dedupe,priority:2;index:idx_notifications_inbox,priority:1" json:"recipient_user_id"`
	Type            Kind          `gorm:"type:varchar(16);not null" json:"type"`
	Title           string        `gorm:"type:varchar(255);not null" json:"title"`
	Message         string        `gorm:"type:text;not null" json:"message"`
	Link            *string       `gorm:"type:varchar(1024)" json:"link,omitempty"`
	SubjectID       *snowflake.ID `json:"subject_id,omitempty"`
	DedupeKey       string        `gorm:"type:varchar(255);not null;uniqueIndex:ux_notifications_dedupe,priority:3" json:"-"`
	IsRead          bool          `gorm:"not null;default:false;index:idx_notifications_inbox,priority:3" json:"is_read"`
	ReadAt          *time.Time    `json:"read_at,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	// EmailSending marks a job one dispatcher has claimed and is handing to the provider.
	EmailSending EmailStatus = "sending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// EmailJob is an outbound email. OrgID is always the triggering entity's organization.
type EmailJob struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID  `gorm:"not null;index:idx_email_jobs_org_status,priority:1" json:"org_id"`
	NotificationID *snowflake.ID `gorm:"index" json:"notification_id,omitempty"`
	RecipientEmail string        `gorm:"type:varchar(320);not null" json:"recipient_email"`
	Subject        string        `gorm:"type:varchar(512);not null;default:''" json:"subject"`
	BodyTemplateID string        `gorm:"type:varchar(64);not null" json:"body_template_id"`
	Body           string        `gorm:"type:text;not null;default:''" json:"-"`
	Status         EmailStatus   `gorm:"type:varchar(16);not null;index:idx_email_jobs_org_status,priority:2;index:idx_email_jobs_status_created,priority:1" json:"status"`
	LastError      *string       `gorm:"type:text" json:"last_error,omitempty"`
	Attempts       int           `gorm:"not null;default:0" json:"attempts"`
	CreatedAt      time.Time     `gorm:"not null;index:idx_email_jobs_status_created,priority:2" json:"created_at"`
	SentAt         *time.Time    `json:"sent_at,omitempty"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
}

func (EmailJob) TableName() string { return "email_jobs" }
