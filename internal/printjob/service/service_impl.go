package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/printjob/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Fleet    *config.FleetConfigHolder
	Repo     domain.Repository
	CostRepo domain.CostRepository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	fleet    *config.FleetConfigHolder
	repo     domain.Repository
	costRepo domain.CostRepository
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("printjob.service"),
		fleet:    p.Fleet,
		repo:     p.Repo,
		costRepo: p.CostRepo,
	}
}

func (s *Service) GetJob(ctx context.Context, id snowflake.ID) (*domain.PrintJob, error) {
	job, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *Service) DepartmentRate(ctx context.Context, department string) (domain.PrintCost, error) {
	department = strings.TrimSpace(department)
	fallback := FallbackRate(s.fleet)
	if department == "" {
		return fallback, nil
	}

	cost, err := s.costRepo.FindByDepartment(ctx, s.db, department)
	if err != nil {
		return domain.PrintCost{}, err
	}
	if cost == nil {
		fallback.Department = department
		return fallback, nil
	}
	return *cost, nil
}

// SetDepartmentRate only affects jobs created afterwards.
func (s *Service) SetDepartmentRate(ctx context.Context, department string, blackAndWhite, color float64) (*domain.PrintCost, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, domain.ErrInvalidDepartment
	}
	if blackAndWhite < 0 || color < 0 {
		return nil, fmt.Errorf("%w: rates cannot be negative", domain.ErrInvalidRate)
	}

	cost := &domain.PrintCost{
		Department:        department,
		BlackAndWhitePage: blackAndWhite,
		ColorPage:         color,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := s.costRepo.Upsert(ctx, s.db, cost); err != nil {
		return nil, err
	}

	s.log.Info("department rate updated",
		zap.String("department", department),
		zap.Float64("black_and_white_page", blackAndWhite),
		zap.Float64("color_page", color),
	)
	return cost, nil
}

// FallbackRate returns the fleet wide rates applied to departments without
// a rate row.
func FallbackRate(holder *config.FleetConfigHolder) domain.PrintCost {
	costs := config.DefaultFleetConfig().Costs
	if holder != nil {
		costs = holder.Get().Costs
	}
	return domain.PrintCost{
		BlackAndWhitePage: costs.BlackAndWhitePage,
		ColorPage:         costs.ColorPage,
	}
}
