package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	PrinterID snowflake.ID
	Status    Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, capture *Capture) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Capture, error)
	// FindForUpdate reads the capture holding a row lock when the dialect
	// supports one.
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Capture, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]Capture, error)
	// MarkProcessed and MarkError only move a CAPTURED row. They return the
	// number of rows changed.
	MarkProcessed(ctx context.Context, db *gorm.DB, id, userID, jobID snowflake.ID, at time.Time) (int64, error)
	MarkError(ctx context.Context, db *gorm.DB, id snowflake.ID, userID *snowflake.ID, code string, at time.Time) (int64, error)
}
