package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/quota/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, quota *domain.Quota) error {
	return db.WithContext(ctx).Create(quota).Error
}

func (r *repo) FindByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Quota, error) {
	var quota domain.Quota
	err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&quota).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quota, nil
}

// TryIncrement is a single-row compare-and-swap: the limit check and the
// write happen in one UPDATE, so concurrent callers cannot both pass.
func (r *repo) TryIncrement(ctx context.Context, db *gorm.DB, userID snowflake.ID, pages int, color bool, at time.Time) (bool, error) {
	query := `UPDATE print_quotas
		SET current_usage = current_usage + ?, updated_at = ?
		WHERE user_id = ? AND current_usage + ? <= monthly_limit`
	if color {
		query = `UPDATE print_quotas
		SET color_usage = color_usage + ?, updated_at = ?
		WHERE user_id = ? AND color_usage + ? <= color_limit`
	}

	result := db.WithContext(ctx).Exec(query, pages, at, userID, pages)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
