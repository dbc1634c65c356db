package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Quota is a user's monthly page budget. CurrentUsage counts black and white
// pages only; ColorUsage counts color pages only.
type Quota struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID       snowflake.ID `gorm:"not null;uniqueIndex" json:"user_id"`
	MonthlyLimit int          `gorm:"not null" json:"monthly_limit"`
	CurrentUsage int          `gorm:"not null;default:0" json:"current_usage"`
	ColorLimit   int          `gorm:"not null" json:"color_limit"`
	ColorUsage   int          `gorm:"not null;default:0" json:"color_usage"`
	PeriodStart  time.Time    `gorm:"not null" json:"period_start"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Quota) TableName() string { return "print_quotas" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, quota *Quota) error
	FindByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Quota, error)
	// TryIncrement adds pages to the counter matching color only when the
	// result stays within its limit. It reports false when the limit would
	// be exceeded, without writing anything.
	TryIncrement(ctx context.Context, db *gorm.DB, userID snowflake.ID, pages int, color bool, at time.Time) (bool, error)
}
