package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
)

type Requisition struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID    `gorm:"not null;index:idx_requisitions_org_status,priority:1" json:"org_id"`
	Title        string          `gorm:"type:varchar(255);not null" json:"title"`
	Description  string          `gorm:"type:text;not null;default:''" json:"description"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	Currency     string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status       Status          `gorm:"type:varchar(16);not null;index:idx_requisitions_org_status,priority:2" json:"status"`
	RequesterID  snowflake.ID    `gorm:"not null;index" json:"requester_id"`
	DecidedBy    *snowflake.ID   `json:"decided_by,omitempty"`
	DecisionNote string          `gorm:"type:text;not null;default:''" json:"decision_note,omitempty"`
	SubmittedAt  *time.Time      `json:"submitted_at,omitempty"`
	DecidedAt    *time.Time      `json:"decided_at,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (Requisition) TableName() string { return "requisitions" }
