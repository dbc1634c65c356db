package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *Delivery) error
	ListByPrinter(ctx context.Context, db *gorm.DB, printerID snowflake.ID, limit int) ([]Delivery, error)
}
