package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/printer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, printer *domain.Printer) error {
	return db.WithContext(ctx).Create(printer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Printer, error) {
	var printer domain.Printer
	err := db.WithContext(ctx).Where("id = ?", id).Take(&printer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &printer, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, printer *domain.Printer) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Printer{}).
		Where("id = ?", printer.ID).
		Updates(map[string]any{
			"status":            printer.Status,
			"toner_levels":      printer.TonerLevels,
			"paper_levels":      printer.PaperLevels,
			"error_messages":    printer.ErrorMessages,
			"job_queue":         printer.JobQueue,
			"total_pages_month": printer.TotalPagesMonth,
			"last_updated":      printer.LastUpdated,
			"updated_at":        printer.UpdatedAt,
		})
	return result.RowsAffected, result.Error
}
