package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Item is an inventory entry whose code is issued by the organization's counter.
type Item struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;uniqueIndex:ux_items_org_code,priority:1" json:"org_id"`
	Code       string        `gorm:"type:varchar(64);not null;uniqueIndex:ux_items_org_code,priority:2" json:"code"`
	Name       string        `gorm:"type:varchar(255);not null" json:"name"`
	Unit       string        `gorm:"type:varchar(32);not null;default:''" json:"unit"`
	CategoryID *snowflake.ID `gorm:"index" json:"category_id,omitempty"`
	CreatedBy  snowflake.ID  `gorm:"not null" json:"created_by"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
}

func (Item) TableName() string { return "items" }
