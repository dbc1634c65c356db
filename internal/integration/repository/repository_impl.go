package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/integration/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, integration *domain.Integration) error {
	return db.WithContext(ctx).Create(integration).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Integration, error) {
	var integration domain.Integration
	err := db.WithContext(ctx).Where("id = ?", id).Take(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *repo) FindByPrinter(ctx context.Context, db *gorm.DB, printerID snowflake.ID, typ domain.Type) (*domain.Integration, error) {
	var integration domain.Integration
	stmt := db.WithContext(ctx).Where("printer_id = ?", printerID)
	if typ != "" {
		stmt = stmt.Where("type = ?", typ)
	} else {
		stmt = stmt.Where("is_active = ?", true)
	}
	err := stmt.Order("updated_at desc, id desc").Take(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *repo) ListByPrinter(ctx context.Context, db *gorm.DB, printerID snowflake.ID) ([]*domain.Integration, error) {
	var items []*domain.Integration
	err := db.WithContext(ctx).
		Where("printer_id = ?", printerID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Integration, error) {
	var items []*domain.Integration
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, integration *domain.Integration) error {
	return db.WithContext(ctx).
		Model(&domain.Integration{}).
		Where("id = ?", integration.ID).
		Updates(map[string]any{
			"endpoint":       integration.Endpoint,
			"auth_type":      integration.AuthType,
			"credentials":    integration.SealedCredentials,
			"webhook_secret": integration.SealedWebhookSecret,
			"poll_interval":  integration.PollInterval,
			"is_active":      integration.IsActive,
			"updated_at":     integration.UpdatedAt,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Integration{})
	return result.RowsAffected, result.Error
}

func (r *repo) MarkSynced(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE printer_integrations SET last_sync = ?, last_error = '' WHERE id = ?`,
		at, id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE printer_integrations SET last_error = ? WHERE id = ?`,
		message, id,
	)
	return result.RowsAffected, result.Error
}
