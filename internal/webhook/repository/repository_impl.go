package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *domain.Delivery) error {
	return db.WithContext(ctx).Create(d).Error
}

func (r *repo) ListByPrinter(ctx context.Context, db *gorm.DB, printerID snowflake.ID, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Delivery
	err := db.WithContext(ctx).
		Where("printer_id = ?", printerID).
		Order("received_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
