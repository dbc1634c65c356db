package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/capture/domain"
	"github.com/smallbiznis/printfleet/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, capture *domain.Capture) error {
	return db.WithContext(ctx).Create(capture).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Capture, error) {
	return r.find(db.WithContext(ctx), id)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Capture, error) {
	stmt := db.WithContext(ctx)
	// sqlite serialises writers already and has no FOR UPDATE.
	if stmt.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return r.find(stmt, id)
}

func (r *repo) find(stmt *gorm.DB, id snowflake.ID) (*domain.Capture, error) {
	var capture domain.Capture
	err := stmt.Where("id = ?", id).Take(&capture).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &capture, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.Capture, error) {
	stmt := db.WithContext(ctx).Model(&domain.Capture{})
	if filter.PrinterID != 0 {
		stmt = stmt.Where("printer_id = ?", filter.PrinterID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	stmt, err := pagination.Apply(stmt, page, "captured_at")
	if err != nil {
		return nil, err
	}

	var captures []domain.Capture
	if err := stmt.Find(&captures).Error; err != nil {
		return nil, err
	}
	return captures, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id, userID, jobID snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Capture{}).
		Where("id = ? AND status = ?", id, domain.StatusCaptured).
		Updates(map[string]any{
			"status":       domain.StatusProcessed,
			"user_id":      userID,
			"print_job_id": jobID,
			"processed_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) MarkError(ctx context.Context, db *gorm.DB, id snowflake.ID, userID *snowflake.ID, code string, at time.Time) (int64, error) {
	updates := map[string]any{
		"status":       domain.StatusError,
		"error_code":   code,
		"processed_at": at,
	}
	if userID != nil {
		updates["user_id"] = *userID
	}

	result := db.WithContext(ctx).
		Model(&domain.Capture{}).
		Where("id = ? AND status = ?", id, domain.StatusCaptured).
		Updates(updates)
	return result.RowsAffected, result.Error
}
