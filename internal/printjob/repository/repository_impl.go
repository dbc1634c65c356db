package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/printjob/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.PrintJob) error {
	return db.WithContext(ctx).Create(job).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PrintJob, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByCaptureID(ctx context.Context, db *gorm.DB, captureID snowflake.ID) (*domain.PrintJob, error) {
	return r.findOne(ctx, db, "capture_id = ?", captureID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.PrintJob, error) {
	var job domain.PrintJob
	err := db.WithContext(ctx).Where(query, args...).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

type costRepo struct{}

func ProvideCost() domain.CostRepository {
	return &costRepo{}
}

func (r *costRepo) FindByDepartment(ctx context.Context, db *gorm.DB, department string) (*domain.PrintCost, error) {
	var cost domain.PrintCost
	err := db.WithContext(ctx).Where("department = ?", department).Take(&cost).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cost, nil
}

func (r *costRepo) Upsert(ctx context.Context, db *gorm.DB, cost *domain.PrintCost) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "department"}},
		DoUpdates: clause.AssignmentColumns([]string{"black_and_white_page", "color_page", "updated_at"}),
	}).Create(cost).Error
}
