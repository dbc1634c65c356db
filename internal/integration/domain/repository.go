package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, integration *Integration) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Integration, error)
	FindByPrinter(ctx context.Context, db *gorm.DB, printerID snowflake.ID, typ Type) (*Integration, error)
	ListByPrinter(ctx context.Context, db *gorm.DB, printerID snowflake.ID) ([]*Integration, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]*Integration, error)
	Update(ctx context.Context, db *gorm.DB, integration *Integration) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	MarkSynced(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) (int64, error)
}
