package printjob

import (
	"github.com/smallbiznis/printfleet/internal/printjob/repository"
	"github.com/smallbiznis/printfleet/internal/printjob/service"
	"go.uber.org/fx"
)

var Module = fx.Module("printjob.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideCost),
	fx.Provide(service.New),
)
