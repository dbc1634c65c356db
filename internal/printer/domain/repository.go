package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, printer *Printer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Printer, error)
	// UpdateStatus writes every status column in one statement.
	UpdateStatus(ctx context.Context, db *gorm.DB, printer *Printer) (int64, error)
}
