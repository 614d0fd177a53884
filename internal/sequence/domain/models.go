package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Counter is the per-organization code sequence. There is exactly one row per organization.
type Counter struct {
	OrgID      snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"org_id"`
	Prefix     string       `gorm:"type:varchar(16);not null" json:"prefix"`
	NextNumber int64        `gorm:"not null;default:1" json:"next_number"`
	Padding    int          `gorm:"not null;default:0" json:"padding"`
	LastIssued int64        `gorm:"not null;default:0" json:"last_issued"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (Counter) TableName() string { return "org_counters" }

// Issued is the counter state observed by one allocation.
type Issued struct {
	Prefix  string
	Padding int
	Number  int64
}
