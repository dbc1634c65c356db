package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *PrintJob) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PrintJob, error)
	FindByCaptureID(ctx context.Context, db *gorm.DB, captureID snowflake.ID) (*PrintJob, error)
}

type CostRepository interface {
	FindByDepartment(ctx context.Context, db *gorm.DB, department string) (*PrintCost, error)
	Upsert(ctx context.Context, db *gorm.DB, cost *PrintCost) error
}
