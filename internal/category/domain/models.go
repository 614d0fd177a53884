package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Category groups items. Code and name are unique among the organization's live categories.
type Category struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID   `gorm:"not null;index:idx_categories_org_code,priority:1;index:idx_categories_org_name,priority:1" json:"org_id"`
	Code      string         `gorm:"type:varchar(64);not null;index:idx_categories_org_code,priority:2" json:"code"`
	Name      string         `gorm:"type:varchar(255);not null;index:idx_categories_org_name,priority:2" json:"name"`
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Category) TableName() string { return "categories" }
