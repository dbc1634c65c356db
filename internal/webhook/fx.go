package webhook

import (
	"github.com/smallbiznis/printfleet/internal/webhook/domain"
	"github.com/smallbiznis/printfleet/internal/webhook/repository"
	"github.com/smallbiznis/printfleet/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(service.New, fx.As(new(domain.Service)), fx.As(fx.Self())),
	),
)
