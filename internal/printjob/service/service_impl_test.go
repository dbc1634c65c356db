package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/printfleet/internal/config"
	"github.com/smallbiznis/printfleet/internal/printjob/domain"
	"github.com/smallbiznis/printfleet/internal/printjob/repository"
	"github.com/smallbiznis/printfleet/pkg/db"
)

func newTestService(t *testing.T, fleet config.FleetConfig) domain.Service {
	t.Helper()

	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.PrintJob{}, &domain.PrintCost{}))

	return New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Fleet:    config.NewStaticFleetConfigHolder(fleet),
		Repo:     repository.Provide(),
		CostRepo: repository.ProvideCost(),
	})
}

func TestDepartmentRateFallsBackToFleetConfig(t *testing.T) {
	svc := newTestService(t, config.DefaultFleetConfig())

	rate, err := svc.DepartmentRate(context.Background(), "finance")
	require.NoError(t, err)
	assert.Equal(t, "finance", rate.Department)
	assert.Equal(t, 0.05, rate.BlackAndWhitePage)
	assert.Equal(t, 0.15, rate.ColorPage)
}

func TestSetDepartmentRateUpserts(t *testing.T) {
	svc := newTestService(t, config.DefaultFleetConfig())
	ctx := context.Background()

	_, err := svc.SetDepartmentRate(ctx, "marketing", 0.04, 0.2)
	require.NoError(t, err)
	_, err = svc.SetDepartmentRate(ctx, "marketing", 0.03, 0.25)
	require.NoError(t, err)

	rate, err := svc.DepartmentRate(ctx, "marketing")
	require.NoError(t, err)
	assert.InDelta(t, 0.03, rate.BlackAndWhitePage, 1e-9)
	assert.InDelta(t, 0.25, rate.ColorPage, 1e-9)

	_, err = svc.SetDepartmentRate(ctx, " ", 0.1, 0.1)
	assert.ErrorIs(t, err, domain.ErrInvalidDepartment)
	_, err = svc.SetDepartmentRate(ctx, "it", -1, 0.1)
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
}

func TestPriceRoundsToCents(t *testing.T) {
	assert.Equal(t, 0.30, domain.Price(6, 0.05))
	assert.Equal(t, 1.05, domain.Price(7, 0.15))
	assert.Equal(t, 0.0, domain.Price(0, 0.15))
	assert.Equal(t, 0.05, domain.EffectiveRate(nil, domain.PrintCost{BlackAndWhitePage: 0.05}, false))
}
